package uploads

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

// MockDriver implements StorageDriver for testing
type MockDriver struct {
	SavedKey       string
	SavedBody      []byte
	GenerateURLErr error
	DeleteCalled   bool
	DeleteKey      string
}

func (m *MockDriver) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	m.SavedKey = key
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.SavedBody = content
	return nil
}

func (m *MockDriver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader(m.SavedBody)), "application/test", nil
}

func (m *MockDriver) Delete(ctx context.Context, key string) error {
	m.DeleteCalled = true
	m.DeleteKey = key
	return nil
}

func (m *MockDriver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if m.GenerateURLErr != nil {
		return "", m.GenerateURLErr
	}
	return "/test/" + key, nil
}

func TestStaging_Stage(t *testing.T) {
	mock := &MockDriver{}
	staging := NewStaging(mock)

	ctx := context.Background()
	filename := "IMG_0209.JPG"
	content := []byte("image data")

	staged, err := staging.Stage(ctx, filename, bytes.NewReader(content), int64(len(content)), "image/jpeg")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if staged.Name != filename {
		t.Errorf("expected name %s, got %s", filename, staged.Name)
	}

	if !bytes.Equal(mock.SavedBody, content) {
		t.Error("saved body does not match input")
	}

	if staged.URL != "/test/"+mock.SavedKey {
		t.Errorf("unexpected URL: %s", staged.URL)
	}
}

func TestStaging_GenerateURLFailureCleansUp(t *testing.T) {
	mock := &MockDriver{
		GenerateURLErr: io.ErrUnexpectedEOF, // Just an example error
	}
	staging := NewStaging(mock)

	ctx := context.Background()
	content := []byte("image data")

	_, err := staging.Stage(ctx, "fail.jpg", bytes.NewReader(content), int64(len(content)), "image/jpeg")
	if err == nil {
		t.Fatal("expected Stage to fail when GenerateURL fails")
	}

	if !mock.DeleteCalled {
		t.Error("expected Delete to be called to cleanup orphaned file")
	}

	if mock.DeleteKey != mock.SavedKey {
		t.Errorf("expected Delete to be called with key %s, got %s", mock.SavedKey, mock.DeleteKey)
	}
}

func TestStaging_OpenAndDiscard(t *testing.T) {
	mock := &MockDriver{
		SavedBody: []byte("photo bytes"),
	}
	staging := NewStaging(mock)

	ctx := context.Background()
	reader, contentType, err := staging.Open(ctx, "some-key")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()

	if contentType != "application/test" {
		t.Errorf("expected content type application/test, got %s", contentType)
	}

	content, _ := io.ReadAll(reader)
	if !bytes.Equal(content, mock.SavedBody) {
		t.Error("opened content does not match saved body")
	}

	if err := staging.Discard(ctx, "some-key"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if !mock.DeleteCalled || mock.DeleteKey != "some-key" {
		t.Error("expected Discard to delete the staged photo")
	}
}
