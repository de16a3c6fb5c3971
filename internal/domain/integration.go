package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/integrations/internal/platform/crypto"
)

// Provider names an external service. The set is open; new providers only need
// a registry entry.
type Provider string

const (
	ProviderVercel  Provider = "vercel"
	ProviderWebflow Provider = "webflow"
)

func (p Provider) String() string { return string(p) }

// Integration is one user's stored connection to one provider.
type Integration struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Provider Provider

	AccessToken  crypto.EncryptedSecret
	RefreshToken *crypto.EncryptedSecret

	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenGrant is the plaintext result of a provider code exchange. It never
// leaves the request that produced it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string

	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time

	Metadata map[string]string
}

// Account identifies the provider-side owner of a token.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type IntegrationRepository interface {
	// Replace removes any record for (UserID, Provider) and inserts the given
	// one atomically.
	Replace(ctx context.Context, integration *Integration) error
	Find(ctx context.Context, userID uuid.UUID, provider Provider) (*Integration, error)
	Exists(ctx context.Context, userID uuid.UUID, provider Provider) (bool, error)
	Delete(ctx context.Context, userID uuid.UUID, provider Provider) error
}
