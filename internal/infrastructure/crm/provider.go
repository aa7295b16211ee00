package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domaincrm "github.com/formbridge/backend/internal/domain/crm"
	"github.com/formbridge/backend/internal/domain/session"
	"github.com/formbridge/backend/internal/domain/shared"
	"github.com/formbridge/backend/internal/infrastructure/config"
)

// Provider resolves an authenticated client for the record-keeping system.
// Preference order: a per-user OAuth token session located by context id,
// then the shared service-account connection, lazily initialized on first
// use.
type Provider struct {
	cfg    config.CRMConfig
	tokens *TokenManager
	logger *zap.Logger

	// newClient is swappable in tests
	newClient func(instanceURL string, token TokenFunc) domaincrm.Client

	sharedMu    sync.Mutex
	shared      domaincrm.Client
	sharedToken *TokenData
}

// NewProvider creates a connection provider
func NewProvider(cfg config.CRMConfig, tokens *TokenManager, logger *zap.Logger) *Provider {
	p := &Provider{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
	}
	p.newClient = func(instanceURL string, token TokenFunc) domaincrm.Client {
		return NewRESTClient(instanceURL, cfg.APIVersion, token, cfg.Timeout, logger)
	}
	return p
}

// Resolve returns an authenticated client. An empty context id skips the
// per-user path and resolves the shared connection directly.
func (p *Provider) Resolve(ctx context.Context, contextID string) (domaincrm.Client, error) {
	if contextID != "" {
		if client, ok, err := p.resolveUserConnection(contextID); err != nil {
			return nil, err
		} else if ok {
			return client, nil
		}
	}
	return p.resolveSharedConnection(ctx)
}

// resolveUserConnection returns a client bound to the caller's own token
// session, if one exists. A malformed context id is not an error here; the
// shared connection simply takes over.
func (p *Provider) resolveUserConnection(contextID string) (domaincrm.Client, bool, error) {
	id, err := session.ParseContextID(contextID)
	if err != nil {
		return nil, false, nil
	}
	ts, ok := p.tokens.Session(id.SessionID)
	if !ok {
		return nil, false, nil
	}
	if ts.TokenData.InstanceURL == "" {
		// A handle without its target instance is unusable; surfacing it as
		// a hard error beats a confusing downstream failure.
		return nil, false, shared.NewConnectionError(
			fmt.Sprintf("token session for %s has no instance URL", contextID))
	}

	sessionID := id.SessionID
	client := p.newClient(ts.TokenData.InstanceURL, func(ctx context.Context) (string, error) {
		return p.tokens.GetValidAccessToken(ctx, sessionID)
	})
	return client, true, nil
}

// resolveSharedConnection lazily initializes the service-account connection
func (p *Provider) resolveSharedConnection(ctx context.Context) (domaincrm.Client, error) {
	p.sharedMu.Lock()
	defer p.sharedMu.Unlock()

	if p.shared != nil {
		return p.shared, nil
	}

	if p.cfg.InstanceURL == "" {
		return nil, shared.NewConnectionError("no shared connection configured: crm.instance_url is empty")
	}
	if p.cfg.TokenURL == "" || p.cfg.ClientID == "" {
		return nil, shared.NewConnectionError("no shared connection configured: OAuth client settings are incomplete")
	}

	p.shared = p.newClient(p.cfg.InstanceURL, p.sharedAccessToken)
	if p.logger != nil {
		p.logger.Info("shared service connection initialized",
			zap.String("instance_url", p.cfg.InstanceURL))
	}
	return p.shared, nil
}

// sharedAccessToken serves the service-account token, fetching via the
// client-credentials grant and reusing it until near expiry. Calls are
// serialized by sharedMu, so concurrent requests cannot duplicate the grant.
func (p *Provider) sharedAccessToken(ctx context.Context) (string, error) {
	p.sharedMu.Lock()
	defer p.sharedMu.Unlock()

	if p.sharedToken != nil && time.Now().Before(p.sharedToken.ExpiresAt.Add(-time.Minute)) {
		return p.sharedToken.AccessToken, nil
	}

	oauth := NewOAuthClient(p.cfg.TokenURL, p.cfg.ClientID, p.cfg.ClientSecret, p.cfg.Timeout)
	data, err := oauth.ClientCredentials(ctx)
	if err != nil {
		return "", err
	}
	p.sharedToken = data
	return data.AccessToken, nil
}

// RegisterTokenSession stores a completed OAuth credential set for a form
// session, making the per-user connection path available
func (p *Provider) RegisterTokenSession(sessionID, contextID string, data TokenData) error {
	return p.tokens.store.Put(&TokenSession{
		SessionID: sessionID,
		ContextID: contextID,
		TokenData: data,
	})
}
