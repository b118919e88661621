package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	rec := &recorder{}
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return statusErr(503)
		}
		return nil
	}, WithSleep(rec.sleep))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	rec := &recorder{}
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return statusErr(500)
	}, WithSleep(rec.sleep))

	assert.Equal(t, statusErr(500), err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestDo_NonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", statusErr(400)},
		{"not found", statusErr(404)},
		{"rate limited", statusErr(429)},
		{"out of range", statusErr(600)},
		{"no status", errors.New("dial tcp: refused")},
		{"wrapped 4xx", fmt.Errorf("post: %w", statusErr(422))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			calls := 0

			err := Do(context.Background(), func(ctx context.Context) error {
				calls++
				return tt.err
			}, WithSleep(rec.sleep))

			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, rec.delays)
		})
	}
}

func TestDo_WrappedServerErrorIsRetried(t *testing.T) {
	rec := &recorder{}
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("stream: %w", statusErr(502))
		}
		return nil
	}, WithSleep(rec.sleep))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestDo_ContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return statusErr(503)
	}, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_RealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, func(ctx context.Context) error {
		return statusErr(503)
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestDo_OnRetryHook(t *testing.T) {
	var attempts []int
	calls := 0

	_ = Do(context.Background(), func(ctx context.Context) error {
		calls++
		return statusErr(504)
	},
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithMaxRetries(2),
		WithOnRetry(func(attempt int, delay time.Duration, err error) {
			attempts = append(attempts, attempt)
		}),
	)

	assert.Equal(t, []int{0, 1}, attempts)
	assert.Equal(t, 3, calls)
}

func TestSchedule(t *testing.T) {
	assert.Equal(t,
		[]time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Schedule(),
	)
	assert.Equal(t,
		[]time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		Schedule(WithInitialDelay(10*time.Millisecond), WithMaxRetries(2)),
	)
}
