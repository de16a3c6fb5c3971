package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 16)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"abc-123_DEF.4", true},
		{"", false},
		{strings.Repeat("a", 65), false},
		{"has space", false},
		{"new\nline", false},
		{"quote\"", false},
	}

	for _, tt := range tests {
		id, ok := FromHeader(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, tt.in, id)
		}
	}
}

func TestID_Roundtrip(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_InjectsID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(WithID(context.Background(), "req-42"), "with id")
	assert.Contains(t, buf.String(), "correlation_id=req-42")

	buf.Reset()
	logger.Info("without id")
	assert.NotContains(t, buf.String(), AttrKey)
}

func TestHandler_PreservesAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).
		With("component", "oauth").
		WithGroup("req")

	logger.InfoContext(WithID(context.Background(), "req-7"), "grouped", "path", "/x")

	out := buf.String()
	assert.Contains(t, out, "component=oauth")
	assert.Contains(t, out, "req.path=/x")
	assert.Contains(t, out, "req.correlation_id=req-7")
}
