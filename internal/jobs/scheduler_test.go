package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (int64, error) {
	c.calls.Add(1)
	return 3, c.err
}

func TestStartSweepsImmediately(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, time.UTC)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestNextRunIsLocalMidnight(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	s := NewScheduler(&countingSweeper{}, loc)
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.Next().In(loc)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestSweepErrorIsLogged(t *testing.T) {
	sw := &countingSweeper{err: errors.New("boom")}
	s := NewScheduler(sw, nil)
	s.RunSweep(context.Background())
	assert.Equal(t, int32(1), sw.calls.Load())
}
