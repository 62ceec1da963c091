// Package speech integrates Yandex SpeechKit recognition/synthesis and
// Yandex Translate.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const iamTokenURL = "https://iam.api.cloud.yandex.net/iam/v1/tokens"

// iamRefreshInterval is well inside the 12h token lifetime.
const iamRefreshInterval = 6 * time.Hour

// IAMTokenManager exchanges a Yandex OAuth token for short-lived IAM tokens
// and keeps the current one fresh.
type IAMTokenManager struct {
	oauthToken string
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewIAMTokenManager creates a token manager. Call Refresh once at startup
// and StartRefreshLoop for the background renewal.
func NewIAMTokenManager(oauthToken string) *IAMTokenManager {
	return &IAMTokenManager{
		oauthToken: oauthToken,
		baseURL:    iamTokenURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns the current IAM token.
func (m *IAMTokenManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Refresh obtains a fresh IAM token.
func (m *IAMTokenManager) Refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"yandexPassportOauthToken": m.oauthToken})
	if err != nil {
		return fmt.Errorf("marshal IAM request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build IAM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request IAM token: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("IAM token request failed: status %d", resp.StatusCode)
	}

	var parsed struct {
		IAMToken string `json:"iamToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode IAM response: %w", err)
	}
	if parsed.IAMToken == "" {
		return fmt.Errorf("IAM response contained no token")
	}

	m.mu.Lock()
	m.token = parsed.IAMToken
	m.mu.Unlock()

	slog.Info("IAM token refreshed")
	return nil
}

// StartRefreshLoop renews the IAM token periodically until ctx is done.
func (m *IAMTokenManager) StartRefreshLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(iamRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Refresh(ctx); err != nil {
					slog.Error("IAM token refresh failed", "error", err)
				}
			}
		}
	}()
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	if err := body.Close(); err != nil {
		slog.Debug("failed to close response body", "error", err)
	}
}
