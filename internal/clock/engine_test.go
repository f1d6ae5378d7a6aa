package clock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_MeasuredDeltas(t *testing.T) {
	fake := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)

	e := New(fake, time.Second, func(d time.Duration) { ticks <- d })
	e.Start(context.Background())
	defer e.Stop()

	// Let the goroutine create its ticker before advancing.
	require.NoError(t, fake.BlockUntilContext(context.Background(), 1))

	fake.Advance(time.Second)
	assert.Equal(t, time.Second, <-ticks)

	// A late tick reports the real elapsed time, not the nominal interval.
	fake.Advance(time.Second + 700*time.Millisecond)
	assert.Equal(t, time.Second+700*time.Millisecond, <-ticks)
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	fake := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)

	e := New(fake, time.Second, func(d time.Duration) { ticks <- d })

	e.Stop() // stopping a never-started engine is fine
	assert.False(t, e.Running())

	e.Start(context.Background())
	e.Start(context.Background()) // second start is a no-op
	assert.True(t, e.Running())
	require.NoError(t, fake.BlockUntilContext(context.Background(), 1))

	fake.Advance(time.Second)
	<-ticks

	e.Stop()
	e.Stop()
	assert.False(t, e.Running())

	fake.Advance(5 * time.Second)
	select {
	case d := <-ticks:
		t.Fatalf("tick %v after stop", d)
	case <-time.After(50 * time.Millisecond):
	}
}
