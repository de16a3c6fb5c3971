package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_String(t *testing.T) {
	info := Info{Version: "v1.2.0", Commit: "0123456789abcdef", BuildTime: "2026-01-01T00:00:00Z", GoVersion: "go1.25.6"}
	assert.Equal(t, "v1.2.0 (0123456789ab, built 2026-01-01T00:00:00Z, go1.25.6)", info.String())
}

func TestGet_Defaults(t *testing.T) {
	info := Get()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Len(t, info.LogArgs(), 8)
}
