package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL      string
	UploadURL      string
	Username       string
	Room           string
	ArchivePath    string
	MaxUploadBytes int64
	FFmpegBinary   string
}

// DefaultArchivePath returns a per-user data path for the bundled SQLite file.
func DefaultArchivePath() string {
	if env := os.Getenv("ROOMCHAT_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("ROOMCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomchat", "roomchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomchat", "roomchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomchat", "roomchat.db")
		}
		return filepath.Join(home, ".local", "share", "roomchat", "roomchat.db")
	}
	return filepath.Join(".", ".roomchat", "roomchat.db")
}

// UploadURLFromServer converts ws(s)://host[:port]/path to the attachment
// endpoint http(s)://host[:port]/upload on the same server.
func UploadURLFromServer(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/") + "/upload", nil
}
