// Package assetmanager is the client for the digital asset manager holding
// the camera-trap photos. Folders are "categories" identified by UUID; the
// human-readable camera folder name lives in the category's tree name, so
// lookups list the base category's subfolders and match by name.
package assetmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
)

const serviceName = "asset-manager"

// retry policy for idempotent GETs only; writes are never retried.
const (
	maxGetAttempts = 3
	retryBackoff   = 200 * time.Millisecond
)

// Asset is one photo asset inside a camera folder.
type Asset struct {
	ID          string
	Title       string
	FileName    string
	DownloadURL string
}

// Attribute is a natively settable metadata attribute of the asset manager.
type Attribute struct {
	ID   string
	Name string
}

// Client talks to the asset manager's REST API with a cached bearer token
// and the tenant subscription key.
type Client struct {
	cfg    config.AssetManagerConfig
	http   *http.Client
	tokens *authtoken.Cache

	// descriptionAttr is patched via its own path instead of
	// /attributes/{id}; the API special-cases it.
	descriptionAttr string
}

// NewClient builds an asset-manager client and registers its token slot on
// the shared cache.
func NewClient(cfg config.AssetManagerConfig, descriptionAttr string, tokens *authtoken.Cache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{cfg: cfg, http: httpClient, tokens: tokens, descriptionAttr: descriptionAttr}
	tokens.Register(serviceName, cfg.TokenTTLMargin, c.fetchToken)
	return c
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
		"scope":      {"api"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.External(serviceName, "token exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.External(serviceName, "token exchange", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperr.External(serviceName, "token exchange", err)
	}
	if body.AccessToken == "" {
		return "", apperr.External(serviceName, "token exchange", fmt.Errorf("empty access_token"))
	}
	return body.AccessToken, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx, serviceName)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	return nil
}

// getJSON performs an authorized GET with bounded retries and decodes the
// response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxGetAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff << (attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return err
		}
		if err := c.authorize(ctx, req); err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return apperr.External(serviceName, "GET "+path, fmt.Errorf("status %d", resp.StatusCode))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return apperr.External(serviceName, "GET "+path, err)
		}
		return nil
	}
	return apperr.External(serviceName, "GET "+path, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.External(serviceName, method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.External(serviceName, method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.External(serviceName, method+" "+path, err)
		}
	}
	return nil
}

// FindFolder resolves a camera folder name to its category ID. A folder
// that does not exist yet is a NotFoundError; the operator creates it (or
// an upload flow does) before tagging.
func (c *Client) FindFolder(ctx context.Context, name string) (string, error) {
	var body struct {
		Payload []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"payload"`
	}
	path := fmt.Sprintf("/folders/%s/subfolders", c.cfg.BaseCategoryID)
	if err := c.getJSON(ctx, path, &body); err != nil {
		return "", err
	}

	for _, folder := range body.Payload {
		if folder.Name == name {
			return folder.ID, nil
		}
	}
	return "", apperr.NotFound("folder", name)
}

// CreateFolder creates a camera folder under the base category, reusing an
// existing folder with the same name.
func (c *Client) CreateFolder(ctx context.Context, name string) (string, error) {
	existing, err := c.FindFolder(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsNotFound(err) {
		return "", err
	}

	folderID := uuid.NewString()
	payload := map[string]string{
		"parentId":    c.cfg.BaseCategoryID,
		"categoryId":  folderID,
		"treeName":    name,
		"description": name,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/categories", payload, nil); err != nil {
		return "", err
	}
	return folderID, nil
}

// ListAssets lists the assets of a camera folder.
func (c *Client) ListAssets(ctx context.Context, folderID string) ([]Asset, error) {
	var body struct {
		Payload struct {
			Assets []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
				File  struct {
					FileName string `json:"fileName"`
				} `json:"file"`
				Media struct {
					Download string `json:"download"`
				} `json:"media"`
			} `json:"assets"`
		} `json:"payload"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/categories/%s/assets", folderID), &body); err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(body.Payload.Assets))
	for _, a := range body.Payload.Assets {
		assets = append(assets, Asset{ID: a.ID, Title: a.Title, FileName: a.File.FileName, DownloadURL: a.Media.Download})
	}
	return assets, nil
}

// AttributeIDsForNames resolves attribute display names to IDs in one
// listing call. An unknown name means the configured attribute set and the
// tenant's schema disagree.
func (c *Client) AttributeIDsForNames(ctx context.Context, names []string) (map[string]string, error) {
	var body struct {
		Payload []Attribute `json:"payload"`
	}
	if err := c.getJSON(ctx, "/attributes", &body); err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(body.Payload))
	for _, attr := range body.Payload {
		byName[attr.Name] = attr.ID
	}

	ids := make(map[string]string, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, apperr.Configuration("attribute %q is not supported by the asset manager", name)
		}
		ids[name] = id
	}
	return ids, nil
}

// SetAttribute patches one attribute value onto an asset. The description
// attribute is addressed by its lowercased name rather than an ID path.
func (c *Client) SetAttribute(ctx context.Context, assetID, attributeName, attributeID, value string) error {
	path := "/attributes/" + attributeID
	if attributeName == c.descriptionAttr {
		path = "/" + strings.ToLower(c.descriptionAttr)
	}
	patch := []map[string]string{{
		"op":    "replace",
		"path":  path,
		"value": value,
	}}
	return c.doJSON(ctx, http.MethodPatch, "/assets/"+assetID, patch, nil)
}

// TagAssets writes the attribute map onto each asset. Attribute names are
// resolved to IDs once, then patched per asset and attribute.
func (c *Client) TagAssets(ctx context.Context, attributes map[string]string, assetIDs []string) error {
	names := make([]string, 0, len(attributes))
	for name := range attributes {
		if name != c.descriptionAttr {
			names = append(names, name)
		}
	}

	ids, err := c.AttributeIDsForNames(ctx, names)
	if err != nil {
		return err
	}

	for _, assetID := range assetIDs {
		for name, value := range attributes {
			if err := c.SetAttribute(ctx, assetID, name, ids[name], value); err != nil {
				return fmt.Errorf("tagging asset %s attribute %s: %w", assetID, name, err)
			}
		}
	}
	return nil
}

// Upload pushes one photo into a camera folder. The API makes this a
// multi-step dance: reserve an upload slot, PUT the bytes to the returned
// blob URL, attach a title, file the asset into the folder, then flip its
// status to approved.
func (c *Client) Upload(ctx context.Context, content io.Reader, filename, folderID string) (string, error) {
	var reserve struct {
		Payload struct {
			ID        string `json:"id"`
			UploadURL string `json:"uploadUrl"`
		} `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/uploads", map[string]string{"filename": filename}, &reserve); err != nil {
		return "", err
	}
	assetID := reserve.Payload.ID

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, reserve.Payload.UploadURL, content)
	if err != nil {
		return "", err
	}
	putReq.Header.Set("x-ms-blob-type", "BlockBlob")

	putResp, err := c.http.Do(putReq)
	if err != nil {
		return "", apperr.External(serviceName, "upload bytes", err)
	}
	putResp.Body.Close()
	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return "", apperr.External(serviceName, "upload bytes", fmt.Errorf("status %d", putResp.StatusCode))
	}

	// Title is the filename without its extension.
	title := filename
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		title = filename[:idx]
	}
	if err := c.doJSON(ctx, http.MethodPut, "/uploads/"+assetID,
		map[string]string{"filename": filename, "title": title}, nil); err != nil {
		return "", err
	}

	if err := c.doJSON(ctx, http.MethodPost, "/uploads/"+assetID+"/categories", []string{folderID}, nil); err != nil {
		return "", err
	}

	approve := []map[string]any{{"op": "replace", "path": "/status", "value": 1}}
	if err := c.doJSON(ctx, http.MethodPatch, "/uploads/"+assetID, approve, nil); err != nil {
		return "", err
	}

	return assetID, nil
}
