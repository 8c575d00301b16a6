package internal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// DefaultUploadCeiling is the attachment size limit: 50 MiB.
const DefaultUploadCeiling = 50 << 20

var uploadTimeout = 60 * time.Second

// AttachmentUploader performs the single upload exchange against the HTTP
// upload endpoint. It knows nothing about recording or room state; it takes
// bytes in and hands an AttachmentRef back.
type AttachmentUploader struct {
	endpoint string
	ceiling  int64
	client   *http.Client
}

// NewAttachmentUploader builds an uploader for the given endpoint. A
// non-positive ceiling falls back to the default.
func NewAttachmentUploader(endpoint string, ceiling int64) *AttachmentUploader {
	if ceiling <= 0 {
		ceiling = DefaultUploadCeiling
	}
	return &AttachmentUploader{
		endpoint: endpoint,
		ceiling:  ceiling,
		client:   &http.Client{Timeout: uploadTimeout},
	}
}

type uploadResponse struct {
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
}

// Upload ships one file to the upload endpoint and returns the remote
// reference. A file over the ceiling fails with ErrTooLarge before any
// network call; a file exactly at the ceiling proceeds. No retry happens
// here: the caller decides whether the user re-invokes.
func (u *AttachmentUploader) Upload(ctx context.Context, filename string, content []byte) (*AttachmentRef, error) {
	if int64(len(content)) > u.ceiling {
		return nil, fmt.Errorf("%w (%d bytes, limit %d)", ErrTooLarge, len(content), u.ceiling)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: server returned %d: %s", ErrUploadFailed, resp.StatusCode, readResponseError(resp.Body))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("%w: response missing url", ErrUploadFailed)
	}
	if parsed.Type == "" {
		parsed.Type = ClassifyAttachment(filename)
	}
	return &AttachmentRef{URL: parsed.URL, Type: parsed.Type}, nil
}

// readResponseError extracts a human-readable message from a failed
// response body.
func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// ImagePreview builds a local-only data URL for optimistic display of an
// image attachment before the message carrying it is sent. No network
// round trip is involved.
func ImagePreview(filename string, content []byte) string {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

// ClassifyAttachment maps a filename to its attachment type by extension.
func ClassifyAttachment(filename string) AttachmentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg":
		return AttachmentImage
	case ".wav", ".mp3", ".ogg", ".flac", ".m4a", ".opus":
		return AttachmentAudio
	case ".webm", ".mp4", ".mov", ".mkv", ".avi":
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}
