package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("still down")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad input")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("down")
	calls := 0
	err := Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDelayBounds(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}
