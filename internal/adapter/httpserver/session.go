package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/pscheid92/integrations/internal/domain"
)

// SessionKeyUserID is the session value holding the signed-in user's id. The
// login service writes it; this service only reads.
const SessionKeyUserID = "user_id"

// CookieSessions resolves callers from a signed session cookie shared with the
// login service.
type CookieSessions struct {
	store *sessions.CookieStore
	name  string
}

func NewCookieSessions(secret, name string, secure bool) *CookieSessions {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieSessions{store: store, name: name}
}

// Session returns (nil, nil) when the cookie is absent or carries no user. A
// cookie that fails signature verification is an error.
func (s *CookieSessions) Session(ctx context.Context, header http.Header) (*domain.Session, error) {
	req := (&http.Request{Header: header}).WithContext(ctx)
	if _, err := req.Cookie(s.name); err != nil {
		return nil, nil
	}

	session, err := s.store.Get(req, s.name)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	raw, ok := session.Values[SessionKeyUserID].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in session: %w", err)
	}
	return &domain.Session{UserID: id}, nil
}
