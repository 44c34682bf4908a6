package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
)

// ErrInvalidGrant marks a rejected refresh token. This is fatal: operator
// intervention is required, there is no automatic re-auth loop.
var ErrInvalidGrant = errors.New("refresh token rejected (invalid_grant)")

// refreshSkew is subtracted from token lifetimes so refresh happens ahead of
// actual expiry.
const refreshSkew = 300 * time.Second

const tokenPath = "/identity/v1/oauth2/token"

// CredentialManager holds the application and user OAuth tokens and refreshes
// each ahead of expiry. Refresh is single-flight per token kind.
type CredentialManager struct {
	cfg        config.MarketplaceConfig
	baseURL    string
	httpClient *http.Client
	clock      auction.Clock
	logger     *zap.Logger

	group singleflight.Group

	mu               sync.RWMutex
	appToken         string
	appExpiresAt     time.Time
	userToken        string
	userExpiresAt    time.Time
	userRefreshToken string
}

// NewCredentialManager creates a credential manager seeded with the stored
// user refresh token.
func NewCredentialManager(cfg config.MarketplaceConfig, clock auction.Clock, logger *zap.Logger) *CredentialManager {
	return &CredentialManager{
		cfg:              cfg,
		baseURL:          cfg.ResolveBaseURL(),
		httpClient:       &http.Client{},
		clock:            clock,
		logger:           logger,
		userRefreshToken: cfg.UserRefreshToken,
	}
}

// AppToken returns a valid application token, refreshing via the
// client-credentials grant when it expires within the skew window.
func (m *CredentialManager) AppToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, expires := m.appToken, m.appExpiresAt
	m.mu.RUnlock()

	if token != "" && m.clock.Now().Add(refreshSkew).Before(expires) {
		return token, nil
	}
	return m.refreshApp(ctx)
}

// UserToken returns a valid user token, refreshing via the refresh-token
// grant when it expires within the skew window.
func (m *CredentialManager) UserToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, expires := m.userToken, m.userExpiresAt
	m.mu.RUnlock()

	if token != "" && m.clock.Now().Add(refreshSkew).Before(expires) {
		return token, nil
	}
	return m.refreshUser(ctx)
}

// EnsureUserTokenUntil preemptively refreshes the user token when it would
// expire before the given instant less the skew. The scheduler calls this on
// the bid path with the auction's end time.
func (m *CredentialManager) EnsureUserTokenUntil(ctx context.Context, deadline time.Time) error {
	m.mu.RLock()
	expires := m.userExpiresAt
	token := m.userToken
	m.mu.RUnlock()

	if token != "" && !expires.Before(deadline.Add(-refreshSkew)) {
		return nil
	}
	_, err := m.refreshUser(ctx)
	return err
}

func (m *CredentialManager) refreshApp(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("app", func() (interface{}, error) {
		form := url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"https://api.ebay.com/oauth/api_scope"},
		}
		resp, err := m.tokenRequest(ctx, form)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.appToken = resp.AccessToken
		m.appExpiresAt = m.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		m.mu.Unlock()

		m.logger.Info("application token refreshed",
			zap.Int("expires_in", resp.ExpiresIn))
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *CredentialManager) refreshUser(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do("user", func() (interface{}, error) {
		m.mu.RLock()
		refreshToken := m.userRefreshToken
		m.mu.RUnlock()

		if refreshToken == "" {
			return nil, fmt.Errorf("no user refresh token configured")
		}

		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		}
		resp, err := m.tokenRequest(ctx, form)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.userToken = resp.AccessToken
		m.userExpiresAt = m.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		// The grant may rotate the refresh token; the new one replaces
		// the old.
		if resp.RefreshToken != "" {
			m.userRefreshToken = resp.RefreshToken
		}
		m.mu.Unlock()

		m.logger.Info("user token refreshed",
			zap.Int("expires_in", resp.ExpiresIn),
			zap.Bool("refresh_token_rotated", resp.RefreshToken != ""))
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (m *CredentialManager) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp tokenErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error == "invalid_grant" {
			m.logger.Error("refresh token rejected by marketplace; operator action required",
				zap.String("description", errResp.ErrorDescription))
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("token endpoint returned HTTP %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access token")
	}
	return &tr, nil
}
