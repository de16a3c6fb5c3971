package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/crypto"
)

type IntegrationRepo struct {
	pool *pgxpool.Pool
}

var _ domain.IntegrationRepository = (*IntegrationRepo)(nil)

func NewIntegrationRepo(pool *pgxpool.Pool) *IntegrationRepo {
	return &IntegrationRepo{pool: pool}
}

const insertIntegration = `
INSERT INTO integrations (
    id, user_id, provider,
    access_token, access_token_iv, access_token_auth_tag,
    refresh_token, refresh_token_iv, refresh_token_auth_tag,
    access_token_expires_at, refresh_token_expires_at,
    metadata, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (user_id, provider) DO UPDATE SET
    id = EXCLUDED.id,
    access_token = EXCLUDED.access_token,
    access_token_iv = EXCLUDED.access_token_iv,
    access_token_auth_tag = EXCLUDED.access_token_auth_tag,
    refresh_token = EXCLUDED.refresh_token,
    refresh_token_iv = EXCLUDED.refresh_token_iv,
    refresh_token_auth_tag = EXCLUDED.refresh_token_auth_tag,
    access_token_expires_at = EXCLUDED.access_token_expires_at,
    refresh_token_expires_at = EXCLUDED.refresh_token_expires_at,
    metadata = EXCLUDED.metadata,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`

const selectIntegration = `
SELECT id, user_id, provider,
       access_token, access_token_iv, access_token_auth_tag,
       refresh_token, refresh_token_iv, refresh_token_auth_tag,
       access_token_expires_at, refresh_token_expires_at,
       metadata, created_at, updated_at
FROM integrations
WHERE user_id = $1 AND provider = $2`

// Replace overwrites every column of the (user_id, provider) row, or inserts
// it. Concurrent replaces for one pair resolve last-write-wins.
func (r *IntegrationRepo) Replace(ctx context.Context, integration *domain.Integration) error {
	metadata, err := encodeMetadata(integration.Metadata)
	if err != nil {
		return err
	}

	var refresh, refreshIV, refreshTag *string
	if rt := integration.RefreshToken; rt != nil {
		refresh, refreshIV, refreshTag = &rt.Ciphertext, &rt.IV, &rt.AuthTag
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Session users are owned by the identity service; the local row only
	// anchors the cascade.
	if _, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		integration.UserID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	_, err = tx.Exec(ctx, insertIntegration,
		integration.ID, integration.UserID, string(integration.Provider),
		integration.AccessToken.Ciphertext, integration.AccessToken.IV, integration.AccessToken.AuthTag,
		refresh, refreshIV, refreshTag,
		integration.AccessTokenExpiresAt, integration.RefreshTokenExpiresAt,
		metadata, integration.CreatedAt, integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to replace integration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *IntegrationRepo) Find(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Integration, error) {
	var (
		row                            domain.Integration
		providerName                   string
		accessIV, accessTag            *string
		refresh, refreshIV, refreshTag *string
		accessExpires, refreshExpires  *time.Time
		metadata                       []byte
	)

	err := r.pool.QueryRow(ctx, selectIntegration, userID, string(provider)).Scan(
		&row.ID, &row.UserID, &providerName,
		&row.AccessToken.Ciphertext, &accessIV, &accessTag,
		&refresh, &refreshIV, &refreshTag,
		&accessExpires, &refreshExpires,
		&metadata, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	row.Provider = domain.Provider(providerName)
	row.AccessToken.IV = deref(accessIV)
	row.AccessToken.AuthTag = deref(accessTag)
	if refresh != nil {
		row.RefreshToken = &crypto.EncryptedSecret{
			Ciphertext: *refresh,
			IV:         deref(refreshIV),
			AuthTag:    deref(refreshTag),
		}
	}
	row.AccessTokenExpiresAt = accessExpires
	row.RefreshTokenExpiresAt = refreshExpires

	if row.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &row, nil
}

// Exists only selects the key so ciphertext never leaves the database.
func (r *IntegrationRepo) Exists(ctx context.Context, userID uuid.UUID, provider domain.Provider) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM integrations WHERE user_id = $1 AND provider = $2)`,
		userID, string(provider),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check integration: %w", err)
	}
	return exists, nil
}

func (r *IntegrationRepo) Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM integrations WHERE user_id = $1 AND provider = $2`,
		userID, string(provider)); err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}

func decodeMetadata(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
