// Package mapservice publishes web-map items on the external mapping
// platform.
package mapservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
)

const serviceName = "map-service"

// Item is a published content item.
type Item struct {
	ID          string
	HomepageURL string
}

// Client calls the mapping platform's sharing API.
type Client struct {
	cfg    config.MapServiceConfig
	http   *http.Client
	tokens *authtoken.Cache
}

// NewClient builds a map-service client and registers its token slot on
// the shared cache.
func NewClient(cfg config.MapServiceConfig, tokens *authtoken.Cache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{cfg: cfg, http: httpClient, tokens: tokens}
	tokens.Register(serviceName, 50*time.Minute, c.fetchToken)
	return c
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
		"referer":    {c.cfg.BaseURL},
		"f":          {"json"},
		"expiration": {"60"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/sharing/rest/generateToken", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.External(serviceName, "generateToken", err)
	}
	defer resp.Body.Close()

	var body struct {
		Token string `json:"token"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperr.External(serviceName, "generateToken", err)
	}
	if body.Error != nil {
		return "", apperr.External(serviceName, "generateToken", fmt.Errorf("%s", body.Error.Message))
	}
	if body.Token == "" {
		return "", apperr.External(serviceName, "generateToken", fmt.Errorf("empty token in response"))
	}
	return body.Token, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	token, err := c.tokens.Token(ctx, serviceName)
	if err != nil {
		return err
	}
	form.Set("token", token)
	form.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.External(serviceName, "POST "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.External(serviceName, "POST "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.External(serviceName, "POST "+path, err)
	}
	return nil
}

// CreateWebMap adds a new web-map item holding the rendered map document
// and returns it with its private homepage URL.
func (c *Client) CreateWebMap(ctx context.Context, doc json.RawMessage, title string, tags []string, snippet string) (*Item, error) {
	form := url.Values{
		"type":    {"Web Map"},
		"title":   {title},
		"tags":    {strings.Join(tags, ",")},
		"snippet": {snippet},
		"text":    {string(doc)},
	}

	var body struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	path := fmt.Sprintf("/sharing/rest/content/users/%s/addItem", c.cfg.Username)
	if err := c.postForm(ctx, path, form, &body); err != nil {
		return nil, err
	}
	if body.Error != nil {
		return nil, apperr.External(serviceName, "addItem", fmt.Errorf("%s", body.Error.Message))
	}
	if !body.Success || body.ID == "" {
		return nil, apperr.External(serviceName, "addItem", fmt.Errorf("item creation unsuccessful"))
	}

	return &Item{
		ID:          body.ID,
		HomepageURL: fmt.Sprintf("%s/home/item.html?id=%s", c.cfg.BaseURL, body.ID),
	}, nil
}

// Share makes an item visible to everyone.
func (c *Client) Share(ctx context.Context, itemID string) error {
	form := url.Values{
		"items":    {itemID},
		"everyone": {"true"},
	}

	var body struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	path := fmt.Sprintf("/sharing/rest/content/users/%s/shareItems", c.cfg.Username)
	if err := c.postForm(ctx, path, form, &body); err != nil {
		return err
	}
	if body.Error != nil {
		return apperr.External(serviceName, "shareItems", fmt.Errorf("%s", body.Error.Message))
	}
	return nil
}

// Get fetches an item by id.
func (c *Client) Get(ctx context.Context, itemID string) (*Item, error) {
	token, err := c.tokens.Token(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/sharing/rest/content/items/%s?f=json&token=%s", c.cfg.BaseURL, itemID, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.External(serviceName, "get item", err)
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.External(serviceName, "get item", err)
	}
	if body.Error != nil {
		return nil, apperr.External(serviceName, "get item", fmt.Errorf("%s", body.Error.Message))
	}
	if body.ID == "" {
		return nil, apperr.NotFound("web map item", itemID)
	}

	return &Item{
		ID:          body.ID,
		HomepageURL: fmt.Sprintf("%s/home/item.html?id=%s", c.cfg.BaseURL, body.ID),
	}, nil
}

// PublicViewerURL composes the public map-viewer URL for a shared item.
func PublicViewerURL(homepageURL, itemID string) (string, error) {
	base, err := url.Parse(homepageURL)
	if err != nil {
		return "", fmt.Errorf("parsing homepage URL: %w", err)
	}
	viewer, err := base.Parse(fmt.Sprintf("/apps/mapviewer/index.html?webmap=%s", itemID))
	if err != nil {
		return "", err
	}
	return viewer.String(), nil
}

// ItemIDFromHomepageURL recovers the item id embedded in a stored homepage
// URL.
func ItemIDFromHomepageURL(homepageURL string) (string, error) {
	parsed, err := url.Parse(homepageURL)
	if err != nil {
		return "", fmt.Errorf("parsing homepage URL: %w", err)
	}
	id := parsed.Query().Get("id")
	if id == "" {
		return "", apperr.Configuration("homepage URL %q carries no item id", homepageURL)
	}
	return id, nil
}
