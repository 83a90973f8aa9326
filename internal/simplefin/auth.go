package simplefin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// ErrClaimFailed is returned when a setup token cannot be exchanged for an access URL.
var ErrClaimFailed = errors.New("failed to claim SimpleFIN token")

// AuthState is the saved result of claiming a setup token.
type AuthState struct {
	ClaimedAt time.Time `json:"claimed_at"`
	AccessURL string    `json:"access_url"`
	TokenHint string    `json:"token_hint"`
}

// LoadOrClaim returns the saved access URL, claiming token and saving the result
// to statePath when none is saved yet.
func LoadOrClaim(ctx context.Context, httpClient *http.Client, token, statePath string, logger *slog.Logger) (*AuthState, error) {
	if statePath != "" {
		if auth, err := loadState(statePath); err == nil && auth.AccessURL != "" {
			logger.Debug("Using saved SimpleFIN access URL", "claimed_at", auth.ClaimedAt, "state_file", statePath)
			return auth, nil
		}
	}
	if token == "" {
		return nil, common.NewConfigurationError("simplefin.token", nil)
	}

	logger.Info("Claiming SimpleFIN setup token")
	accessURL, err := Claim(ctx, httpClient, token)
	if err != nil {
		return nil, err
	}

	auth := &AuthState{AccessURL: accessURL, ClaimedAt: time.Now().UTC(), TokenHint: tokenHint(token)}
	if statePath != "" {
		if err := saveState(statePath, auth); err != nil {
			return nil, fmt.Errorf("failed to save SimpleFIN state: %w", err)
		}
		logger.Info("Saved SimpleFIN access URL", "state_file", statePath)
	}
	return auth, nil
}

// Claim exchanges a base64 setup token for an access URL. A token can be claimed once.
func Claim(ctx context.Context, httpClient *http.Client, token string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		if decoded, err = base64.StdEncoding.DecodeString(strings.TrimSpace(token)); err != nil {
			return "", common.NewConfigurationError("simplefin.token", fmt.Errorf("%w: %v", common.ErrInvalidConfig, err))
		}
	}
	claimURL := string(decoded)
	if !isHTTPURL(claimURL) {
		return "", common.NewConfigurationError("simplefin.token",
			fmt.Errorf("%w: token does not decode to a URL", common.ErrInvalidConfig))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClaimFailed, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", common.NewUpstreamError(providerName, 0, fmt.Errorf("%w: %w", ErrClaimFailed, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", common.NewUpstreamError(providerName, resp.StatusCode, fmt.Errorf("%w: %w", ErrClaimFailed, err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", common.NewUpstreamError(providerName, resp.StatusCode,
			fmt.Errorf("%w: %s", ErrClaimFailed, strings.TrimSpace(string(body))))
	}

	accessURL := strings.TrimSpace(string(body))
	if !isHTTPURL(accessURL) {
		return "", common.NewUpstreamError(providerName, resp.StatusCode,
			fmt.Errorf("%w: response is not an access URL", ErrClaimFailed))
	}
	return accessURL, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func loadState(path string) (*AuthState, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	var auth AuthState
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

func saveState(path string, auth *AuthState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// tokenHint keeps the ends of a token for identification without storing it.
func tokenHint(token string) string {
	if len(token) > 16 {
		return token[:8] + "..." + token[len(token)-8:]
	}
	return "short_token"
}
