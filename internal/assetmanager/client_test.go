package assetmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.AssetManagerConfig{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/token",
		BaseCategoryID: "base-cat",
		TokenTTLMargin: 240 * time.Second,
	}
	return NewClient(cfg, "Description", authtoken.NewCache(nil), srv.Client())
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories/folder-1/assets", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"payload": map[string]any{
				"assets": []map[string]any{{"id": "a-1", "title": "photo"}},
			},
		})
	})
	client := newTestClient(t, mux)

	assets, err := client.ListAssets(context.Background(), "folder-1")
	assert.NoError(t, err)
	assert.Len(t, assets, 1)
	assert.Equal(t, "a-1", assets[0].ID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_GetExhaustsAttemptBudget(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories/folder-1/assets", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	_, err := client.ListAssets(context.Background(), "folder-1")
	var extErr *apperr.ExternalServiceError
	assert.ErrorAs(t, err, &extErr)
	assert.Equal(t, int32(maxGetAttempts), attempts.Load())
}

func TestClient_GetDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories/folder-1/assets", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	client := newTestClient(t, mux)

	_, err := client.ListAssets(context.Background(), "folder-1")
	var extErr *apperr.ExternalServiceError
	assert.ErrorAs(t, err, &extErr)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_WritesAreNeverRetried(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /assets/a-1", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	err := client.SetAttribute(context.Background(), "a-1", "SPECIES", "attr-7", "wombat")
	var extErr *apperr.ExternalServiceError
	assert.ErrorAs(t, err, &extErr)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_FindFolderMatchesByName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /folders/base-cat/subfolders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"payload": []map[string]string{
				{"id": "cat-1", "name": "CAM-1_20240501"},
				{"id": "cat-2", "name": "CAM-7_20240501"},
			},
		})
	})
	client := newTestClient(t, mux)

	id, err := client.FindFolder(context.Background(), "CAM-7_20240501")
	assert.NoError(t, err)
	assert.Equal(t, "cat-2", id)

	_, err = client.FindFolder(context.Background(), "CAM-9_20240501")
	assert.True(t, apperr.IsNotFound(err))
}
