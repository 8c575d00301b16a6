package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"roomchat/internal/app"
)

func main() {
	defaultServer := envOrDefault("ROOMCHAT_SERVER", "ws://localhost:8080/join")
	defaultUser := envOrDefault("ROOMCHAT_USER", "")
	defaultUpload := envOrDefault("ROOMCHAT_UPLOAD_URL", "")

	serverURL := flag.String("server", defaultServer, "WebSocket join URL (e.g., ws://localhost:8080/join)")
	username := flag.String("user", defaultUser, "default display name for the name prompt")
	uploadURL := flag.String("upload", defaultUpload, "attachment upload URL (derived from -server when empty)")
	archivePath := flag.String("archive", "", "path to the local history database (per-user default when empty)")
	maxUpload := flag.Int64("max-upload", envInt64("ROOMCHAT_MAX_UPLOAD", 0), "attachment size ceiling in bytes (0 uses the built-in default)")
	ffmpegBinary := flag.String("ffmpeg", envOrDefault("ROOMCHAT_FFMPEG", ""), "ffmpeg binary used for audio/video capture")
	flag.Parse()

	args := flag.Args()
	var room string
	if len(args) >= 1 {
		room = args[0]
	}

	cfg := app.ClientConfig{
		ServerURL:      *serverURL,
		UploadURL:      *uploadURL,
		Username:       *username,
		Room:           room,
		ArchivePath:    *archivePath,
		MaxUploadBytes: *maxUpload,
		FFmpegBinary:   *ffmpegBinary,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
