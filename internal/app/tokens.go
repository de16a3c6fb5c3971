package app

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/crypto"
)

// MinTokenLength rejects obviously wrong pastes. It is not a security boundary.
const MinTokenLength = 20

const (
	opSave   = "save"
	opGet    = "get"
	opHas    = "has"
	opRevoke = "revoke"
	opGrant  = "grant"

	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

type Cipher interface {
	Encrypt(plaintext string) (crypto.EncryptedSecret, error)
	Decrypt(secret crypto.EncryptedSecret) (string, error)
}

type Recorder interface {
	RecordTokenOperation(provider domain.Provider, operation, result string)
	RecordCallback(provider domain.Provider, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTokenOperation(domain.Provider, string, string) {}
func (nopRecorder) RecordCallback(domain.Provider, string)               {}

// TokenStore manages one provider's credential per user. Plaintext only
// exists between the caller and the cipher; the repository sees ciphertext.
type TokenStore struct {
	provider domain.Provider
	repo     domain.IntegrationRepository
	cipher   Cipher
	clock    clockwork.Clock
	metrics  Recorder
}

func NewTokenStore(provider domain.Provider, repo domain.IntegrationRepository, cipher Cipher, clock clockwork.Clock, metrics Recorder) *TokenStore {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &TokenStore{
		provider: provider,
		repo:     repo,
		cipher:   cipher,
		clock:    clock,
		metrics:  metrics,
	}
}

func (s *TokenStore) Provider() domain.Provider { return s.provider }

// SaveToken stores a manually supplied token, replacing any previous record.
func (s *TokenStore) SaveToken(ctx context.Context, userID uuid.UUID, rawToken string) error {
	switch {
	case rawToken == "":
		return s.fail(opSave, domain.StorageFailed, domain.ErrTokenEmpty)
	case utf8.RuneCountInString(rawToken) < MinTokenLength:
		return s.fail(opSave, domain.StorageFailed, domain.ErrTokenTooShort)
	}

	secret, err := s.cipher.Encrypt(rawToken)
	if err != nil {
		return s.fail(opSave, domain.StorageFailed, err)
	}

	now := s.clock.Now().UTC()
	integration := &domain.Integration{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    s.provider,
		AccessToken: secret,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Replace(ctx, integration); err != nil {
		return s.fail(opSave, domain.StorageFailed, err)
	}

	s.metrics.RecordTokenOperation(s.provider, opSave, resultOK)
	slog.InfoContext(ctx, "Provider token saved", "user_id", userID, "provider", s.provider)
	return nil
}

// SaveGrant persists the result of an OAuth exchange. extra is merged under
// the grant's own metadata.
func (s *TokenStore) SaveGrant(ctx context.Context, userID uuid.UUID, grant *domain.TokenGrant, extra map[string]string) (*domain.Integration, error) {
	if grant == nil || grant.AccessToken == "" {
		return nil, s.fail(opGrant, domain.StorageFailed, domain.ErrTokenEmpty)
	}

	access, err := s.cipher.Encrypt(grant.AccessToken)
	if err != nil {
		return nil, s.fail(opGrant, domain.StorageFailed, err)
	}

	now := s.clock.Now().UTC()
	integration := &domain.Integration{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    s.provider,
		AccessToken: access,
		Metadata:    mergeMetadata(extra, grant.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if grant.RefreshToken != "" {
		refresh, err := s.cipher.Encrypt(grant.RefreshToken)
		if err != nil {
			return nil, s.fail(opGrant, domain.StorageFailed, err)
		}
		integration.RefreshToken = &refresh
	}
	if !grant.AccessTokenExpiresAt.IsZero() {
		t := grant.AccessTokenExpiresAt.UTC()
		integration.AccessTokenExpiresAt = &t
	}
	if !grant.RefreshTokenExpiresAt.IsZero() {
		t := grant.RefreshTokenExpiresAt.UTC()
		integration.RefreshTokenExpiresAt = &t
	}

	if err := s.repo.Replace(ctx, integration); err != nil {
		return nil, s.fail(opGrant, domain.StorageFailed, err)
	}

	s.metrics.RecordTokenOperation(s.provider, opGrant, resultOK)
	slog.InfoContext(ctx, "Provider grant saved",
		"user_id", userID,
		"provider", s.provider,
		"has_refresh_token", integration.RefreshToken != nil,
	)
	return integration, nil
}

// GetToken returns the plaintext access token. Callers must never log it.
func (s *TokenStore) GetToken(ctx context.Context, userID uuid.UUID) (string, error) {
	integration, err := s.repo.Find(ctx, userID, s.provider)
	if errors.Is(err, domain.ErrIntegrationNotFound) {
		return "", s.fail(opGet, domain.TokenNotFound, err)
	}
	if err != nil {
		return "", s.fail(opGet, domain.StorageFailed, err)
	}

	if integration.AccessToken.IV == "" || integration.AccessToken.AuthTag == "" {
		return "", s.fail(opGet, domain.DecryptionFailed, domain.ErrIncompleteEncryption)
	}

	token, err := s.cipher.Decrypt(integration.AccessToken)
	if err != nil {
		return "", s.fail(opGet, domain.DecryptionFailed, err)
	}

	s.metrics.RecordTokenOperation(s.provider, opGet, resultOK)
	return token, nil
}

func (s *TokenStore) HasToken(ctx context.Context, userID uuid.UUID) (bool, error) {
	ok, err := s.repo.Exists(ctx, userID, s.provider)
	if err != nil {
		return false, s.fail(opHas, domain.StorageFailed, err)
	}
	s.metrics.RecordTokenOperation(s.provider, opHas, resultOK)
	return ok, nil
}

// RevokeToken deletes the record if present. Revoking nothing is not an error.
func (s *TokenStore) RevokeToken(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, s.provider); err != nil {
		return s.fail(opRevoke, domain.StorageFailed, err)
	}
	s.metrics.RecordTokenOperation(s.provider, opRevoke, resultOK)
	slog.InfoContext(ctx, "Provider token revoked", "user_id", userID, "provider", s.provider)
	return nil
}

func (s *TokenStore) fail(op string, kind domain.TokenErrorKind, cause error) error {
	result := resultError
	if kind == domain.TokenNotFound {
		result = resultNotFound
	}
	s.metrics.RecordTokenOperation(s.provider, op, result)
	return domain.NewTokenError(kind, s.provider, cause)
}

func mergeMetadata(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	maps.Copy(merged, base)
	for k, v := range override {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// TokenStores indexes the per-provider stores.
type TokenStores map[domain.Provider]*TokenStore

func NewTokenStores(repo domain.IntegrationRepository, cipher Cipher, clock clockwork.Clock, metrics Recorder, providers ...domain.Provider) TokenStores {
	stores := make(TokenStores, len(providers))
	for _, p := range providers {
		stores[p] = NewTokenStore(p, repo, cipher, clock, metrics)
	}
	return stores
}

func (ts TokenStores) Get(provider domain.Provider) (*TokenStore, error) {
	s, ok := ts[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return s, nil
}
