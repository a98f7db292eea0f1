package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Length(t *testing.T) {
	gen := NewGenerator(16)

	id, err := gen.Generate()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(id)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestGenerate_URLSafe(t *testing.T) {
	gen := NewGenerator(32)

	id, err := gen.Generate()
	require.NoError(t, err)

	for _, r := range id {
		isURLSafe := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		assert.True(t, isURLSafe, "unexpected rune %q in token %s", r, id)
	}
}

func TestGenerate_Unique(t *testing.T) {
	gen := NewGenerator(16)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, err := gen.Generate()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate token %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewGenerator_DefaultsBadLength(t *testing.T) {
	gen := NewGenerator(0)

	id, err := gen.Generate()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(id)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultLengthBytes)
}
