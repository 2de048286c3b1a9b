package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/go-wishlist-harvester/config"
)

// Login form fields understood by the storefront.
const (
	loginField       = "user_login"
	passwordField    = "password"
	loginIntentField = "dispatch[auth.login]"

	logoutSelector = `a[href*="auth.logout"]`
)

// Login opens a session and signs in. The session is only returned when
// the storefront shows a signed-in page; otherwise it is closed and an
// ErrAuth is returned. Login is never retried.
func Login(ctx context.Context, cfg *config.Config, username, password string, opts ...SessionOption) (*Session, error) {
	sess, err := NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := sess.login(ctx, username, password); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func (s *Session) login(ctx context.Context, username, password string) error {
	origin := s.base.String()

	// The first visit seeds the session cookies the login form expects.
	if _, err := s.Get(ctx, origin); err != nil {
		return ErrAuth{StatusCode: statusCodeOf(err), Err: fmt.Errorf("seed session: %w", err)}
	}

	page, err := s.Post(ctx, origin, map[string]string{
		loginField:       username,
		passwordField:    password,
		loginIntentField: "",
	})
	if err != nil {
		return ErrAuth{StatusCode: statusCodeOf(err), Err: err}
	}
	if page.StatusCode != http.StatusOK {
		return ErrAuth{
			StatusCode: page.StatusCode,
			Err:        ErrStatus{StatusCode: page.StatusCode, Err: fmt.Errorf("unexpected login response")},
		}
	}

	doc, err := page.Document()
	if err != nil {
		return ErrAuth{StatusCode: page.StatusCode, Err: err}
	}
	if doc.Find(logoutSelector).Length() == 0 {
		return ErrAuth{StatusCode: page.StatusCode, Err: ErrInvalidCredentials}
	}

	slog.Info("signed in",
		slog.String("origin", origin),
		slog.Int("cookies", len(s.Cookies())),
	)
	return nil
}
