package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/integrations/internal/domain"
	"golang.org/x/oauth2"
)

const (
	exchangeTimeout = 10 * time.Second
	verifyTimeout   = 10 * time.Second
	maxDrainBytes   = 4 << 10
)

var (
	ErrExchangeFailed      = errors.New("token exchange failed")
	ErrVerifyFailed        = errors.New("token verification failed")
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
)

// Provider is one external service that issues tokens through an
// authorization-code redirect.
type Provider interface {
	Name() domain.Provider
	// StateRequired reports whether a callback without state must be rejected.
	StateRequired() bool
	AuthorizationURL(redirectURI, state string) string
	Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)
	Verify(ctx context.Context, accessToken string) (*domain.Account, error)
	// CallbackParams maps provider-specific callback query parameters to
	// metadata keys.
	CallbackParams() map[string]string
}

// UpstreamError reports a non-success response from the provider. It holds the
// status only; the body stays in the server log.
type UpstreamError struct {
	Op     error
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: upstream status %d", e.Op, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Op }

// Registry holds the configured providers by name.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Provider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name domain.Provider) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []domain.Provider {
	names := make([]domain.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// client carries what the concrete providers share: an oauth2 config for the
// code exchange, a plain HTTP client for API calls, and a circuit breaker.
type client struct {
	name       domain.Provider
	oauth      *oauth2.Config
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
}

func newClient(name domain.Provider, cfg *oauth2.Config, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchangeTimeout}
	}
	return client{
		name:       name,
		oauth:      cfg,
		httpClient: httpClient,
		breaker:    newBreaker(name),
	}
}

func newBreaker(name domain.Provider) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(5).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "oauth",
				"provider", name,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()
}

// providerFault separates provider outages from caller mistakes such as an
// expired code; only the former should open the breaker.
func providerFault(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status >= http.StatusInternalServerError || upstream.Status == http.StatusTooManyRequests
	}
	return true
}

func guarded[T any](cb circuitbreaker.CircuitBreaker[any], op func() (T, error)) (T, error) {
	var zero T
	if !cb.TryAcquirePermit() {
		return zero, fmt.Errorf("%w: %w", ErrProviderUnavailable, circuitbreaker.ErrOpen)
	}

	val, err := op()
	if err != nil && providerFault(err) {
		cb.RecordError(err)
	} else {
		cb.RecordSuccess()
	}
	return val, err
}

func (c *client) exchange(ctx context.Context, code, redirectURI string, extraKeys ...string) (*domain.TokenGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	return guarded(c.breaker, func() (*domain.TokenGrant, error) {
		token, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
		if err != nil {
			return nil, c.exchangeError(ctx, err)
		}

		grant := &domain.TokenGrant{
			AccessToken:          token.AccessToken,
			RefreshToken:         token.RefreshToken,
			AccessTokenExpiresAt: token.Expiry,
		}
		for _, key := range extraKeys {
			v := token.Extra(key)
			if v == nil {
				continue
			}
			if s := fmt.Sprint(v); s != "" {
				if grant.Metadata == nil {
					grant.Metadata = make(map[string]string, len(extraKeys))
				}
				grant.Metadata[key] = s
			}
		}
		return grant, nil
	})
}

func (c *client) exchangeError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		slog.ErrorContext(ctx, "Provider rejected token exchange",
			"provider", c.name,
			"status", retrieveErr.Response.StatusCode,
			"error_code", retrieveErr.ErrorCode,
			"body_bytes", len(retrieveErr.Body),
		)
		return &UpstreamError{Op: ErrExchangeFailed, Status: retrieveErr.Response.StatusCode}
	}
	return fmt.Errorf("%w: %w", ErrExchangeFailed, err)
}

func (c *client) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	_, err := guarded(c.breaker, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrVerifyFailed, err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrVerifyFailed, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
			return struct{}{}, &UpstreamError{Op: ErrVerifyFailed, Status: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("%w: failed to decode response: %w", ErrVerifyFailed, err)
		}
		return struct{}{}, nil
	})
	return err
}

func endpointURL(base, path string) string {
	u, err := url.JoinPath(base, path)
	if err != nil {
		return base + path
	}
	return u
}
