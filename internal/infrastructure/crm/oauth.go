package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domaincrm "github.com/formbridge/backend/internal/domain/crm"
)

// TokenRefresher exchanges credentials for fresh token data. The concrete
// implementation talks to the external token service; tests substitute it.
type TokenRefresher interface {
	// Refresh exchanges a refresh token for a new credential set
	Refresh(ctx context.Context, refreshToken string) (*TokenData, error)

	// ClientCredentials obtains a credential set for the shared service
	// connection
	ClientCredentials(ctx context.Context) (*TokenData, error)
}

// OAuthClient implements TokenRefresher against a standard OAuth2 token
// endpoint
type OAuthClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewOAuthClient creates an OAuth token client
func NewOAuthClient(tokenURL, clientID, clientSecret string, timeout time.Duration) *OAuthClient {
	return &OAuthClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges a refresh token for a new credential set
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenData, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	return c.exchange(ctx, form)
}

// ClientCredentials obtains a credential set for the shared service connection
func (c *OAuthClient) ClientCredentials(ctx context.Context) (*TokenData, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	return c.exchange(ctx, form)
}

// tokenResponse is the token endpoint payload. issued_at arrives as epoch
// milliseconds in a string, matching the upstream service.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	InstanceURL  string `json:"instance_url"`
	IssuedAt     string `json:"issued_at"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func (c *OAuthClient) exchange(ctx context.Context, form url.Values) (*TokenData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("crm: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection, "", err.Error(), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection, "", err.Error(), resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantConnection,
			"", fmt.Sprintf("unparseable token response: %v", err), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		code := strings.ToUpper(tr.Error)
		if code == "" {
			code = "INVALID_GRANT"
		}
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantAuth, code, tr.ErrorDesc, resp.StatusCode)
	}
	if tr.AccessToken == "" {
		return nil, domaincrm.NewAPIError(domaincrm.ErrorVariantAuth,
			"INVALID_GRANT", "token response missing access token", resp.StatusCode)
	}

	issuedAt := time.Now()
	if ms, err := strconv.ParseInt(tr.IssuedAt, 10, 64); err == nil && ms > 0 {
		issuedAt = time.UnixMilli(ms)
	}

	return &TokenData{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    tokenExpiry(tr.AccessToken, issuedAt, tr.ExpiresIn),
		InstanceURL:  tr.InstanceURL,
	}, nil
}

// defaultTokenLifetime applies when the endpoint reports no expiry and the
// token carries no exp claim
const defaultTokenLifetime = 2 * time.Hour

// tokenExpiry derives the expiry time for an access token. Preference order:
// the endpoint's expires_in, the token's own exp claim when it is JWT-shaped,
// then a conservative default.
func tokenExpiry(accessToken string, issuedAt time.Time, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return issuedAt.Add(time.Duration(expiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(accessToken); ok {
		return exp
	}
	return issuedAt.Add(defaultTokenLifetime)
}

// jwtExpiry extracts the exp claim of a JWT-shaped access token. The claims
// are read unverified; the value only schedules the refresh, it grants
// nothing.
func jwtExpiry(accessToken string) (time.Time, bool) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
