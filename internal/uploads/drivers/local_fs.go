// Package drivers holds the storage backends for the photo staging area.
package drivers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalFSDriver stages photos on local disk. Keys are fanned out into a
// two-level directory tree so one deployment's worth of photos never
// lands in a single flat directory.
type LocalFSDriver struct {
	BaseDir   string
	PublicURL string
}

// NewLocalFSDriver creates the base directory if needed. publicURL is the
// base under which staged files are served (e.g. /api/uploads).
func NewLocalFSDriver(baseDir, publicURL string) (*LocalFSDriver, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalFSDriver{BaseDir: baseDir, PublicURL: publicURL}, nil
}

func (d *LocalFSDriver) fanOutPath(key string) string {
	if len(key) < 4 {
		return key
	}
	return filepath.Join(key[0:2], key[2:4], key)
}

func (d *LocalFSDriver) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	fullPath := filepath.Join(d.BaseDir, d.fanOutPath(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create photo directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(fullPath)
		return fmt.Errorf("failed to write photo content: %w", err)
	}

	// Content type lives in a sidecar so Get can report it.
	metaPath := fullPath + ".meta"
	if err := os.WriteFile(metaPath, []byte(contentType), 0644); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write metadata sidecar: %w", err)
	}

	return nil
}

func (d *LocalFSDriver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath := filepath.Join(d.BaseDir, d.fanOutPath(key))
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if metaBytes, err := os.ReadFile(fullPath + ".meta"); err == nil {
		contentType = string(metaBytes)
	}

	return f, contentType, nil
}

func (d *LocalFSDriver) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(d.BaseDir, d.fanOutPath(key))
	os.Remove(fullPath + ".meta") // sidecar may be absent
	err := os.Remove(fullPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *LocalFSDriver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	// Local staging has no expiry; the server serves the file for as long
	// as it is staged.
	if d.PublicURL == "" {
		return key, nil
	}
	return fmt.Sprintf("%s/%s", d.PublicURL, key), nil
}
