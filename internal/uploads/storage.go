package uploads

import (
	"context"
	"io"
	"time"
)

// StorageDriver is the binary store behind the photo staging area.
type StorageDriver interface {
	// Save writes the content under the given key.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get streams a stored file back along with its content type.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes the file. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GenerateURL returns a URL under which the file can be fetched.
	GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
