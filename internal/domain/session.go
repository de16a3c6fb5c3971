package domain

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Session is the authenticated identity resolved from an inbound request.
type Session struct {
	UserID uuid.UUID
}

// SessionProvider resolves the caller from request headers. It returns
// (nil, nil) when the request is not authenticated.
type SessionProvider interface {
	Session(ctx context.Context, header http.Header) (*Session, error)
}
