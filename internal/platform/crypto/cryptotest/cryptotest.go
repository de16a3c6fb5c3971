// Package cryptotest provides a ready cipher for tests in other packages.
package cryptotest

import (
	"testing"

	"github.com/pscheid92/integrations/internal/platform/crypto"
)

// Key is a fixed 64 hex char key. Test use only.
const Key = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func NewCipher(t testing.TB) *crypto.Cipher {
	t.Helper()
	c, err := crypto.NewCipher(Key)
	if err != nil {
		t.Fatalf("cryptotest: %v", err)
	}
	return c
}
