package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/store"
)

type contextKey int

const (
	userKey contextKey = iota
	claimsKey
)

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

func claimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// SessionConfig holds cookie settings for Session.
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
}

// Session ties the token manager, revocation list and user store into
// cookie-based login sessions.
type Session struct {
	tokens  *TokenManager
	revoker Revoker
	users   store.UserStorer
	cfg     SessionConfig
	logger  *logrus.Logger
}

func NewSession(tokens *TokenManager, revoker Revoker, users store.UserStorer, cfg SessionConfig, logger *logrus.Logger) *Session {
	if cfg.CookieName == "" {
		cfg.CookieName = "sessionid"
	}
	return &Session{tokens: tokens, revoker: revoker, users: users, cfg: cfg, logger: logger}
}

// Middleware resolves the request's session. Missing, invalid, expired or
// revoked tokens leave the request anonymous; it never rejects a request.
func (s *Session) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := s.rawToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, claims, err := s.resolve(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, store.ErrUserNotFound) {
				s.logger.WithError(err).Warn("session lookup failed, continuing anonymously")
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithUser(r.Context(), user)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Session) rawToken(r *http.Request) string {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (s *Session) resolve(ctx context.Context, raw string) (*domain.User, *Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrInvalidToken
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Login issues a token for user and sets the session cookie.
// The token is also returned for API clients using the Authorization header.
func (s *Session) Login(w http.ResponseWriter, user *domain.User) (string, error) {
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		MaxAge:   int(time.Until(claims.ExpiresAt.Time).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// Logout revokes the current token and clears the cookie. Anonymous requests are a no-op.
func (s *Session) Logout(w http.ResponseWriter, r *http.Request) error {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if err := s.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}
