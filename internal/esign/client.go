// Package esign is the client for the electronic signature service that
// approval requests are routed through. Authentication uses a signed JWT
// assertion for a service account; envelopes are located by the custom
// field carrying our correlation token.
package esign

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
)

const serviceName = "esign"

// Envelope statuses in the provider's vocabulary. Anything that is not
// completed or declined is still in flight.
const (
	EnvelopeStatusCompleted = "completed"
	EnvelopeStatusDeclined  = "declined"
)

// Envelope is one signature envelope as returned by the status listing.
type Envelope struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

// Client calls the signature service's REST API.
type Client struct {
	cfg        config.ESignConfig
	http       *http.Client
	tokens     *authtoken.Cache
	privateKey *rsa.PrivateKey
}

// NewClient builds an esign client from a PEM-encoded RSA private key and
// registers its token slot on the shared cache.
func NewClient(cfg config.ESignConfig, privateKeyPEM []byte, tokens *authtoken.Cache, httpClient *http.Client) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing esign private key: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{cfg: cfg, http: httpClient, tokens: tokens, privateKey: key}
	tokens.Register(serviceName, cfg.TokenTTLMargin, c.fetchToken)
	return c, nil
}

// fetchToken exchanges a signed JWT assertion for a bearer token. The
// provider caps the lifetime at one hour regardless of the requested
// expiry.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.cfg.IntegrationKey,
		"sub":   c.cfg.UserID,
		"aud":   c.cfg.OAuthHost,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "signature impersonation",
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing esign token assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/oauth/token", c.cfg.OAuthHost), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.External(serviceName, "token exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperr.External(serviceName, "token exchange",
			fmt.Errorf("status %d: %s", resp.StatusCode, payload))
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

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	token, err := c.tokens.Token(ctx, serviceName)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/restapi"+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.External(serviceName, "GET "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.External(serviceName, "GET "+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.External(serviceName, "GET "+path, err)
	}
	return nil
}

// ListEnvelopesByCustomField lists envelopes whose custom field matches
// the given value, created since the given time.
func (c *Client) ListEnvelopesByCustomField(ctx context.Context, field, value string, since time.Time) ([]Envelope, error) {
	query := url.Values{
		"custom_field": {fmt.Sprintf("%s=%s", field, value)},
		"from_date":    {since.UTC().Format("2006-01-02T15:04:05Z")},
	}
	path := fmt.Sprintf("/v2.1/accounts/%s/envelopes?%s", c.cfg.AccountID, query.Encode())

	var body struct {
		Envelopes []Envelope `json:"envelopes"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Envelopes, nil
}

// GetFormData retrieves the (possibly recipient-edited) form data of a
// completed powerform envelope. The powerform listing is filtered down to
// the one envelope; the first recipient's entries are the approved values.
func (c *Client) GetFormData(ctx context.Context, powerFormID, envelopeID string) (map[string]string, error) {
	path := fmt.Sprintf("/v2.1/accounts/%s/powerforms/%s/form_data", c.cfg.AccountID, powerFormID)

	var body struct {
		Envelopes []struct {
			EnvelopeID string `json:"envelopeId"`
			Recipients []struct {
				FormData []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"formData"`
			} `json:"recipients"`
		} `json:"envelopes"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	for _, envelope := range body.Envelopes {
		if envelope.EnvelopeID != envelopeID {
			continue
		}
		if len(envelope.Recipients) == 0 {
			return nil, apperr.External(serviceName, "form data",
				fmt.Errorf("envelope %s has no recipients", envelopeID))
		}
		formData := make(map[string]string, len(envelope.Recipients[0].FormData))
		for _, entry := range envelope.Recipients[0].FormData {
			formData[entry.Name] = entry.Value
		}
		return formData, nil
	}
	return nil, apperr.External(serviceName, "form data",
		fmt.Errorf("envelope %s not present in powerform submissions", envelopeID))
}

// PowerFormIDFromURL extracts the powerform identifier from a configured
// powerform URL.
func PowerFormIDFromURL(powerFormURL string) (string, error) {
	parsed, err := url.Parse(powerFormURL)
	if err != nil {
		return "", fmt.Errorf("parsing powerform URL: %w", err)
	}
	id := parsed.Query().Get("PowerFormId")
	if id == "" {
		return "", apperr.Configuration("powerform URL %q carries no PowerFormId", powerFormURL)
	}
	return id, nil
}
