package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := gen.NewID()
		require.NoError(t, err)
		parsed, err := goUUID.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, goUUID.Version(7), parsed.Version())
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	assert.True(t, Valid("0190b5e2-0000-7000-8000-000000000001"))
	assert.False(t, Valid("not-a-uuid"))
	assert.False(t, Valid(""))
}
