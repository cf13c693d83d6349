package resilience

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLogBounded(t *testing.T) {
	l := NewCallLog(3)
	for i := range 5 {
		l.Append(CallRecord{RequestID: fmt.Sprintf("r%d", i)})
	}

	recs := l.Records()
	require.Len(t, recs, 3)
	// Oldest first, earliest two overwritten.
	assert.Equal(t, "r2", recs[0].RequestID)
	assert.Equal(t, "r4", recs[2].RequestID)
}

func TestCallLogPartial(t *testing.T) {
	l := NewCallLog(8)
	l.Append(CallRecord{RequestID: "a"})
	l.Append(CallRecord{RequestID: "b"})

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].RequestID)
	assert.Equal(t, "b", recs[1].RequestID)
}

func TestCallLogDefaultCapacity(t *testing.T) {
	l := NewCallLog(0)
	l.Append(CallRecord{RequestID: "a"})
	assert.Len(t, l.Records(), 1)
}
