package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
)

const serviceName = "survey"

// Client queries the survey service's feature endpoint for the configured
// survey's submission layer.
type Client struct {
	cfg    config.SurveyConfig
	http   *http.Client
	tokens *authtoken.Cache
}

// NewClient builds a survey client and registers its token slot on the
// shared cache.
func NewClient(cfg config.SurveyConfig, tokens *authtoken.Cache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
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

// ListSubmissions fetches all submissions of the configured survey.
func (c *Client) ListSubmissions(ctx context.Context) ([]Record, error) {
	token, err := c.tokens.Token(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"where":          {"1=1"},
		"outFields":      {"*"},
		"returnGeometry": {"true"},
		"f":              {"json"},
		"token":          {token},
	}
	endpoint := fmt.Sprintf("%s/rest/services/%s/FeatureServer/0/query?%s",
		c.cfg.BaseURL, c.cfg.SurveyID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.External(serviceName, "query submissions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.External(serviceName, "query submissions",
			fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}

	var body struct {
		Features []struct {
			Attributes map[string]any `json:"attributes"`
			Geometry   map[string]any `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.External(serviceName, "query submissions", err)
	}

	records := make([]Record, 0, len(body.Features))
	for _, feature := range body.Features {
		record := Record(feature.Attributes)
		if record == nil {
			record = Record{}
		}
		// The geometry rides along as a nested mapping; compound metadata
		// specs like "x~y" pick it apart during normalization.
		if feature.Geometry != nil {
			record["SHAPE"] = feature.Geometry
		}
		records = append(records, record)
	}
	return records, nil
}
