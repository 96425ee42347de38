package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSequencerOrder verifies endpoints come out in input order, once each.
func TestSequencerOrder(t *testing.T) {
	seq := NewSequencer([]string{"a", "b", "c"})
	assert.Equal(t, 3, seq.Remaining())

	var got []string
	for {
		e, ok := seq.Next()
		if !ok {
			break
		}
		got = append(got, e)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, seq.Remaining())
}

// TestSequencerExhaustion verifies exhaustion is sticky and yields zero values.
func TestSequencerExhaustion(t *testing.T) {
	seq := NewSequencer([]int{7})

	e, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, 7, e)

	for i := 0; i < 3; i++ {
		e, ok = seq.Next()
		assert.False(t, ok)
		assert.Equal(t, 0, e)
		assert.Equal(t, 0, seq.Remaining())
	}
}

func TestSequencerEmpty(t *testing.T) {
	for _, endpoints := range [][]string{nil, {}} {
		seq := NewSequencer(endpoints)
		assert.Equal(t, 0, seq.Remaining())
		_, ok := seq.Next()
		assert.False(t, ok)
	}
}

// TestSequencerOwnsCopy verifies mutating the caller's slice after
// construction does not change what the sequencer yields.
func TestSequencerOwnsCopy(t *testing.T) {
	endpoints := []string{"a", "b"}
	seq := NewSequencer(endpoints)
	endpoints[0] = "z"
	endpoints[1] = "y"

	first, _ := seq.Next()
	assert.Equal(t, "a", first)
	assert.Equal(t, 1, seq.Remaining())
}

// TestSequencerRemainingCountsDown checks Remaining after every Next.
func TestSequencerRemainingCountsDown(t *testing.T) {
	seq := NewSequencer([]string{"a", "b", "c", "d"})
	for want := 3; want >= 0; want-- {
		_, ok := seq.Next()
		require.True(t, ok)
		assert.Equal(t, want, seq.Remaining())
	}
}
