package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	intrnl "roomchat/internal"
	"roomchat/internal/archive"
)

// RunClient opens the local archive, wires the connection and the media
// pipeline, and hands control to the Bubble Tea TUI until it exits.
func RunClient(cfg ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		derived, err := UploadURLFromServer(cfg.ServerURL)
		if err != nil {
			return fmt.Errorf("derive upload URL: %w", err)
		}
		uploadURL = derived
	}
	ceiling := cfg.MaxUploadBytes
	if ceiling == 0 {
		ceiling = intrnl.DefaultUploadCeiling
	}

	store := openArchive(cfg.ArchivePath)
	if store != nil {
		defer store.Close()
	}

	conn := intrnl.NewRoomConnection(cfg.ServerURL, intrnl.NewSessionStats())
	uploader := intrnl.NewAttachmentUploader(uploadURL, ceiling)
	device := &intrnl.FFmpegDevice{Binary: cfg.FFmpegBinary}

	err := intrnl.RunClient(conn, uploader, device, store, cfg.Username, cfg.Room)
	_ = conn.Leave()
	return err
}

// openArchive opens and migrates the local history database. The archive is
// optional: on any failure the client runs without it.
func openArchive(path string) *archive.Store {
	if path == "" {
		path = DefaultArchivePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Printf("archive disabled: %v", err)
		return nil
	}
	store, err := archive.NewStore(path)
	if err != nil {
		log.Printf("archive disabled: %v", err)
		return nil
	}
	if err := store.Migrate(context.Background()); err != nil {
		log.Printf("archive disabled: %v", err)
		_ = store.Close()
		return nil
	}
	return store
}
