package ident

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeID(t *testing.T) {
	id := NewNodeID()
	assert.True(t, strings.HasPrefix(id, "node_"))
	assert.NotEqual(t, id, NewNodeID())
}

func TestNewSessionIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewSessionID(now)

	parts := strings.SplitN(id, "_", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "session", parts[0])
	assert.Equal(t, "1700000000000", parts[1])
	assert.Len(t, parts[2], 9)

	for _, r := range parts[2] {
		assert.Contains(t, base36, string(r))
	}
}

func TestNewSessionIDUniqueness(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSessionID(now)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
