package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/integrations/internal/domain"
)

// --- Mock implementations ---

type integrationKey struct {
	userID   uuid.UUID
	provider domain.Provider
}

// memoryRepo is an in-memory IntegrationRepository. The fn fields override
// individual methods for error injection.
type memoryRepo struct {
	mu      sync.Mutex
	records map[integrationKey]domain.Integration

	replaceFn func(ctx context.Context, integration *domain.Integration) error
	findFn    func(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Integration, error)
	existsFn  func(ctx context.Context, userID uuid.UUID, provider domain.Provider) (bool, error)
	deleteFn  func(ctx context.Context, userID uuid.UUID, provider domain.Provider) error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[integrationKey]domain.Integration)}
}

func (m *memoryRepo) Replace(ctx context.Context, integration *domain.Integration) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, integration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[integrationKey{integration.UserID, integration.Provider}] = *integration
	return nil
}

func (m *memoryRepo) Find(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Integration, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID, provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[integrationKey{userID, provider}]
	if !ok {
		return nil, domain.ErrIntegrationNotFound
	}
	return &rec, nil
}

func (m *memoryRepo) Exists(ctx context.Context, userID uuid.UUID, provider domain.Provider) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, userID, provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[integrationKey{userID, provider}]
	return ok, nil
}

func (m *memoryRepo) Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, provider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, integrationKey{userID, provider})
	return nil
}

func (m *memoryRepo) count(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.userID == userID {
			n++
		}
	}
	return n
}

func (m *memoryRepo) tamper(userID uuid.UUID, provider domain.Provider, fn func(*domain.Integration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := integrationKey{userID, provider}
	rec := m.records[key]
	fn(&rec)
	m.records[key] = rec
}

type mockSessions struct {
	sessionFn func(ctx context.Context, header http.Header) (*domain.Session, error)
}

func (m *mockSessions) Session(ctx context.Context, header http.Header) (*domain.Session, error) {
	if m.sessionFn != nil {
		return m.sessionFn(ctx, header)
	}
	return nil, nil
}

func signedIn(userID uuid.UUID) *mockSessions {
	return &mockSessions{sessionFn: func(context.Context, http.Header) (*domain.Session, error) {
		return &domain.Session{UserID: userID}, nil
	}}
}

type mockProvider struct {
	name          domain.Provider
	stateRequired bool
	params        map[string]string
	exchangeFn    func(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)

	mu            sync.Mutex
	exchangeCalls int
}

func (m *mockProvider) Name() domain.Provider             { return m.name }
func (m *mockProvider) StateRequired() bool               { return m.stateRequired }
func (m *mockProvider) CallbackParams() map[string]string { return m.params }

func (m *mockProvider) Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, redirectURI)
	}
	return &domain.TokenGrant{AccessToken: "default_access_token_value"}, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

type mockGuard struct {
	consumeFn func(ctx context.Context, state string) (bool, error)
}

func (m *mockGuard) Consume(ctx context.Context, state string) (bool, error) {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, state)
	}
	return true, nil
}

type recordedOp struct {
	provider  domain.Provider
	operation string
	result    string
}

type mockRecorder struct {
	mu        sync.Mutex
	ops       []recordedOp
	callbacks []string
}

func (m *mockRecorder) RecordTokenOperation(provider domain.Provider, operation, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, recordedOp{provider, operation, result})
}

func (m *mockRecorder) RecordCallback(_ domain.Provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, outcome)
}
