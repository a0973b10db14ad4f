package monitor

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amou/memorymap/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_StartStop(t *testing.T) {
	lm := logging.NewSlogManager()
	lm.Setup(io.Discard, "debug", nil)

	var calls atomic.Int32
	s := NewService(Dependencies{
		LogManager: lm,
		Stats: func() Stats {
			calls.Add(1)
			return Stats{Sessions: 1, Markers: 5}
		},
		Interval: 10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	// starting twice is a no-op
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return calls.Load() >= 2 },
		time.Second, 5*time.Millisecond)

	s.Stop()
	require.Eventually(t, func() bool { return !s.IsRunning() },
		time.Second, 5*time.Millisecond)
}
