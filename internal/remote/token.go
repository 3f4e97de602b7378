// Package remote implements the product-API collaborators: auth token
// acquisition, preflight validation, and the detached merge-report poller.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiRequestTimeout = 30 * time.Second

// TokenClient obtains API auth tokens and validates schools before a run.
type TokenClient struct {
	baseURLs map[string]string
	apiKey   string
	http     *http.Client
}

// NewTokenClient builds a client over the environment → base URL map.
func NewTokenClient(baseURLs map[string]string, apiKey string) *TokenClient {
	return &TokenClient{
		baseURLs: baseURLs,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: apiRequestTimeout},
	}
}

func (c *TokenClient) baseURL(environment string) (string, error) {
	base, ok := c.baseURLs[environment]
	if !ok || base == "" {
		return "", fmt.Errorf("remote: no API base URL configured for environment %q", environment)
	}
	return base, nil
}

// ObtainToken exchanges the configured API key for a run-scoped bearer token.
func (c *TokenClient) ObtainToken(ctx context.Context, environment, schoolID string) (string, error) {
	base, err := c.baseURL(environment)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]string{"schoolId": schoolID})
	if err != nil {
		return "", fmt.Errorf("remote: encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("remote: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: obtain token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("remote: obtain token: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("remote: decode token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("remote: empty token for %s", schoolID)
	}
	return out.Token, nil
}

// Preflight verifies the school exists in the target environment before any
// browser work starts.
func (c *TokenClient) Preflight(ctx context.Context, environment, schoolID string) error {
	base, err := c.baseURL(environment)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/schools/"+schoolID, nil)
	if err != nil {
		return fmt.Errorf("remote: preflight request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: preflight: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("remote: school %q does not exist in %s", schoolID, environment)
	default:
		return fmt.Errorf("remote: preflight: status %d", resp.StatusCode)
	}
}
