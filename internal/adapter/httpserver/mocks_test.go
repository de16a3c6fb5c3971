package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/integrations/internal/adapter/metrics"
	"github.com/pscheid92/integrations/internal/app"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/config"
)

// --- Mock implementations ---

type mockTokens struct {
	saveFn   func(ctx context.Context, userID uuid.UUID, rawToken string) error
	getFn    func(ctx context.Context, userID uuid.UUID) (string, error)
	hasFn    func(ctx context.Context, userID uuid.UUID) (bool, error)
	revokeFn func(ctx context.Context, userID uuid.UUID) error
}

func (m *mockTokens) SaveToken(ctx context.Context, userID uuid.UUID, rawToken string) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, userID, rawToken)
	}
	return nil
}

func (m *mockTokens) GetToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return "", errors.New("not implemented")
}

func (m *mockTokens) HasToken(ctx context.Context, userID uuid.UUID) (bool, error) {
	if m.hasFn != nil {
		return m.hasFn(ctx, userID)
	}
	return false, nil
}

func (m *mockTokens) RevokeToken(ctx context.Context, userID uuid.UUID) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, userID)
	}
	return nil
}

type mockCallback struct {
	mu       sync.Mutex
	requests []app.CallbackRequest
	result   app.CallbackResult
}

func (m *mockCallback) Handle(_ context.Context, req app.CallbackRequest) app.CallbackResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.result
}

func (m *mockCallback) last() app.CallbackRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// mockProvider satisfies both the HTTP-facing providerClient and
// app.OAuthProvider.
type mockProvider struct {
	name          domain.Provider
	stateRequired bool
	authURLFn     func(redirectURI, state string) string
	exchangeFn    func(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)
	verifyFn      func(ctx context.Context, accessToken string) (*domain.Account, error)
}

func (m *mockProvider) Name() domain.Provider { return m.name }

func (m *mockProvider) StateRequired() bool { return m.stateRequired }

func (m *mockProvider) CallbackParams() map[string]string { return nil }

func (m *mockProvider) AuthorizationURL(redirectURI, state string) string {
	if m.authURLFn != nil {
		return m.authURLFn(redirectURI, state)
	}
	return "https://provider.test/authorize?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, redirectURI)
	}
	return nil, errors.New("not implemented")
}

func (m *mockProvider) Verify(ctx context.Context, accessToken string) (*domain.Account, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, accessToken)
	}
	return nil, errors.New("not implemented")
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

// memoryRepo is an in-memory IntegrationRepository for end-to-end tests.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Integration
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]*domain.Integration)}
}

func repoKey(userID uuid.UUID, provider domain.Provider) string {
	return userID.String() + "/" + string(provider)
}

func (r *memoryRepo) Replace(_ context.Context, i *domain.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *i
	r.rows[repoKey(i.UserID, i.Provider)] = &cp
	return nil
}

func (r *memoryRepo) Find(_ context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.rows[repoKey(userID, provider)]
	if !ok {
		return nil, domain.ErrIntegrationNotFound
	}
	cp := *i
	return &cp, nil
}

func (r *memoryRepo) Exists(_ context.Context, userID uuid.UUID, provider domain.Provider) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[repoKey(userID, provider)]
	return ok, nil
}

func (r *memoryRepo) Delete(_ context.Context, userID uuid.UUID, provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, repoKey(userID, provider))
	return nil
}

func (r *memoryRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- Test helpers ---

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		AppEnv:            "development",
		PublicBaseURL:     "https://api.example.test",
		SuccessURL:        "https://app.example.test/integrations/connected",
		ErrorURL:          "https://app.example.test/integrations/error",
		StateCookieMaxAge: 10 * time.Minute,
	}
}

type testServerOption func(*Server)

func withIntegration(name domain.Provider, integ Integration) testServerOption {
	return func(s *Server) { s.integrations[name] = integ }
}

func withSessions(p domain.SessionProvider) testServerOption {
	return func(s *Server) { s.sessions = p }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(s *Server) { s.healthChecks = checks }
}

func withConfig(mutate func(*config.Config)) testServerOption {
	return func(s *Server) { mutate(s.config) }
}

func newTestServer(t *testing.T, opts ...testServerOption) (*Server, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testStart)
	srv := newServer(testConfig(), map[domain.Provider]Integration{}, &mockSessions{}, metrics.NewRegistry(), clock)
	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()
	return srv, clock
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(srv *Server, handler echo.HandlerFunc, c echo.Context) error {
	return srv.errors.Handler()(handler)(c)
}
