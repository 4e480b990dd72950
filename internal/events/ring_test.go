package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEviction(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 12; i++ {
		r.Append(LevelInfo, fmt.Sprintf("event %d", i))
	}
	got := r.Snapshot()
	require.Len(t, got, 5)
	assert.Equal(t, "event 7", got[0].Message)
	assert.Equal(t, "event 11", got[4].Message)
}

func TestRingClear(t *testing.T) {
	r := NewRing(0)
	r.Append(LevelError, "boom")
	require.Equal(t, 1, r.Len())
	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRingDefaultCapacity(t *testing.T) {
	r := NewRing(-1)
	for i := 0; i < DefaultCapacity+10; i++ {
		r.Append(LevelDebug, fmt.Sprintf("event %d", i))
	}
	assert.Equal(t, DefaultCapacity, r.Len())
}
