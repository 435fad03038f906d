package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/quillagent/quill/pkg/schema"
)

// TokenStore persists the single OAuth token payload. Implemented by
// store.Store.
type TokenStore interface {
	GetToken(ctx context.Context) ([]byte, error)
	PutToken(ctx context.Context, payload []byte) error
}

// Manager owns the stored token and hands out token sources for Google API
// calls. Refreshed access tokens are written back so a process restart does
// not burn a refresh cycle.
type Manager struct {
	store  TokenStore
	creds  *ClientCredentials
	logger *slog.Logger

	mu     sync.Mutex
	cached *Token
}

// NewManager creates a Manager. creds may be nil when tokens arrive already
// carrying their client fields.
func NewManager(store TokenStore, creds *ClientCredentials, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, creds: creds, logger: logger}
}

// Store normalizes and persists a raw token payload, replacing any existing
// token.
func (m *Manager) Store(ctx context.Context, raw []byte) error {
	t, err := NormalizeToken(raw, m.creds)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "failed to encode token").WithCause(err)
	}
	if err := m.store.PutToken(ctx, payload); err != nil {
		return err
	}

	m.mu.Lock()
	m.cached = t
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "oauth token stored")
	return nil
}

// Token returns the stored token, loading it from the store on first use.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return m.cached, nil
	}

	payload, err := m.store.GetToken(ctx)
	if err != nil {
		if schema.CodeOf(err) == schema.ErrCodeNotFound {
			return nil, schema.NewError(schema.ErrCodeUnauthenticated,
				"no oauth token stored; run 'quill auth login' or POST /api/v1/auth/token")
		}
		return nil, err
	}

	t, err := NormalizeToken(payload, m.creds)
	if err != nil {
		return nil, err
	}
	m.cached = t
	return t, nil
}

// TokenSource returns an auto-refreshing token source. New access tokens are
// persisted as they are minted.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	t, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	base := t.oauth2Config().TokenSource(ctx, t.oauth2Token())
	return &persistingSource{mgr: m, ctx: ctx, base: base, last: t.AccessToken}, nil
}

// persistingSource wraps an oauth2 token source and writes refreshed access
// tokens back through the Manager.
type persistingSource struct {
	mgr  *Manager
	ctx  context.Context
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeUnauthenticated, "token refresh failed").WithCause(err)
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	if changed {
		s.last = tok.AccessToken
	}
	s.mu.Unlock()

	if changed {
		if err := s.mgr.saveRefreshed(s.ctx, tok); err != nil {
			// Persist failures are non-fatal; the refresh token still works.
			s.mgr.logger.WarnContext(s.ctx, "failed to persist refreshed token",
				slog.String("error", err.Error()))
		}
	}
	return tok, nil
}

func (m *Manager) saveRefreshed(ctx context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	t := m.cached
	if t == nil {
		m.mu.Unlock()
		return nil
	}
	t.AccessToken = tok.AccessToken
	t.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		t.RefreshToken = tok.RefreshToken
	}
	payload, err := json.Marshal(t)
	m.mu.Unlock()
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "failed to encode token").WithCause(err)
	}
	return m.store.PutToken(ctx, payload)
}
