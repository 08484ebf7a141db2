package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
)

// StagedFile describes one staged photo.
type StagedFile struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Staging holds photo bytes between user upload and the push to the asset
// manager, after which the staged copy is discarded. The asset manager is
// the source of truth for photo bytes.
type Staging struct {
	Driver StorageDriver
}

func NewStaging(driver StorageDriver) *Staging {
	return &Staging{Driver: driver}
}

// Stage saves an incoming photo under a fresh key and returns its metadata.
func (s *Staging) Stage(ctx context.Context, filename string, reader io.Reader, size int64, mime string) (*StagedFile, error) {
	if mime == "" {
		mime = "application/octet-stream"
	}
	key := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(filename))

	if err := s.Driver.Save(ctx, key, reader, mime); err != nil {
		return nil, fmt.Errorf("storage driver failed: %w", err)
	}

	url, err := s.Driver.GenerateURL(ctx, key, 0)
	if err != nil {
		if delErr := s.Driver.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to cleanup orphaned staged photo", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to generate URL: %w", err)
	}

	slog.InfoContext(ctx, "photo staged", "key", key, "name", filename)
	return &StagedFile{Key: key, Name: filename, URL: url, Size: size, MimeType: mime}, nil
}

// Open streams a staged photo back, with its MIME type.
func (s *Staging) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.Driver.Get(ctx, key)
}

// Discard removes a staged photo once the asset manager holds the bytes.
func (s *Staging) Discard(ctx context.Context, key string) error {
	return s.Driver.Delete(ctx, key)
}

// PublicURL returns a servable URL for a staged photo.
func (s *Staging) PublicURL(ctx context.Context, key string) (string, error) {
	return s.Driver.GenerateURL(ctx, key, 0)
}
