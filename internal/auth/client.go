// Package auth verifies client tokens against the backoffice auth server.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrInvalidToken is returned when the auth server rejects a token.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to a stable user key.
type Verifier interface {
	// Verify returns the user key (phone number) for a valid token.
	Verify(ctx context.Context, token string) (string, error)
}

// Client verifies tokens by calling the backoffice users endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a token verification client.
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify resolves the token to the account's phone number.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close auth response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth server returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Result struct {
			Phone string `json:"phone"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if parsed.Result.Phone == "" {
		return "", ErrInvalidToken
	}
	return parsed.Result.Phone, nil
}
