package auth

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/config"
)

// Session is what collection code knows about the caller's sign-in state.
// The zero value is a guest.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// IsAuthenticated reports whether the session carries a usable token.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// NewSession validates a bearer token and builds the session for it.
func NewSession(cfg config.JWTConfig, token string) (Session, error) {
	token = strings.TrimSpace(token)
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		return Session{}, err
	}
	session := Session{Token: token, UserID: claims.Principal()}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, session Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the stored session, or a guest session.
func SessionFromContext(ctx context.Context) Session {
	if ctx == nil {
		return Session{}
	}
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Session{}
}
