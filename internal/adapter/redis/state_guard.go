package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// StateTTL matches the lifetime of the oauth_state cookie.
	StateTTL       = 10 * time.Minute
	stateKeyPrefix = "oauth:state:"
)

// StateGuard marks OAuth state values as used so a captured callback URL
// cannot be replayed while the cookie is still alive.
type StateGuard struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewStateGuard(rdb goredis.Cmdable) *StateGuard {
	return &StateGuard{rdb: rdb, ttl: StateTTL}
}

// Consume reports true the first time a state is seen and false afterwards.
func (g *StateGuard) Consume(ctx context.Context, state string) (bool, error) {
	fresh, err := g.rdb.SetNX(ctx, stateKey(state), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record oauth state: %w", err)
	}
	return fresh, nil
}

// stateKey hashes the state so raw values never sit in Redis.
func stateKey(state string) string {
	sum := sha256.Sum256([]byte(state))
	return stateKeyPrefix + hex.EncodeToString(sum[:])
}
