package tools

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"knowtree/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:  4,
		CallTimeout:    200 * time.Millisecond,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}
}

func TestBatchMixedOutcomes(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "ok",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "done", nil
		},
	})
	r.MustRegister(&Tool{
		Name: "boom",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("always fails")
		},
	})

	var calls []types.ToolCall
	for i := 0; i < 7; i++ {
		calls = append(calls, types.ToolCall{ID: fmt.Sprintf("ok-%d", i), Name: "ok", Input: map[string]any{}})
	}
	for i := 0; i < 3; i++ {
		calls = append(calls, types.ToolCall{ID: fmt.Sprintf("boom-%d", i), Name: "boom", Input: map[string]any{}})
	}

	batch := NewExecutor(r, fastConfig()).ExecuteBatch(context.Background(), calls)

	assert.Equal(t, 7, batch.Successful)
	assert.Equal(t, 3, batch.Failed)
	require.Len(t, batch.Results, 10)
	// Results preserve input order.
	assert.Equal(t, "ok-0", batch.Results[0].CallID)
	assert.Equal(t, "boom-2", batch.Results[9].CallID)
	for _, res := range batch.Results {
		assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
	}
}

func TestRetryThenSucceed(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "flaky",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			if attempts.Add(1) < 3 {
				return "", errors.New("transient")
			}
			return "finally", nil
		},
	})

	res := NewExecutor(r, fastConfig()).ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "flaky", Input: map[string]any{}})

	assert.True(t, res.Success)
	assert.Equal(t, "finally", res.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryBudgetExhausted(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "dead",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			attempts.Add(1)
			return "", errors.New("permanent")
		},
	})

	res := NewExecutor(r, fastConfig()).ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "dead", Input: map[string]any{}})

	assert.False(t, res.Success)
	assert.Equal(t, int32(3), attempts.Load(), "should use the full attempt budget")
}

func TestUnknownToolFailsWithoutRetry(t *testing.T) {
	r := NewRegistry()
	e := NewExecutor(r, fastConfig())

	res := e.ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "ghost", Input: map[string]any{}})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrToolNotFound)
}

func TestMalformedArgsFailWithoutRetry(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "counter",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			attempts.Add(1)
			return "", nil
		},
	})

	res := NewExecutor(r, fastConfig()).ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "counter", RawInput: "{not json"})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrMalformedArgs)
	assert.Zero(t, attempts.Load(), "malformed args must never reach the tool")
}

func TestRawInputDecoded(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "echo-x",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%v", args["x"]), nil
		},
	})

	res := NewExecutor(r, fastConfig()).ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "echo-x", RawInput: `{"x": "hello"}`})

	require.True(t, res.Success)
	assert.Equal(t, "hello", res.Content)
}

func TestCallTimeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "slow",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})

	cfg := fastConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.RetryAttempts = 1

	res := NewExecutor(r, cfg).ExecuteCall(context.Background(),
		types.ToolCall{ID: "c1", Name: "slow", Input: map[string]any{}})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrCallTimeout)
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := NewRegistry()
	r.MustRegister(&Tool{
		Name: "gauge",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return "", nil
		},
	})

	cfg := fastConfig()
	cfg.MaxConcurrent = 2

	var calls []types.ToolCall
	for i := 0; i < 8; i++ {
		calls = append(calls, types.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "gauge", Input: map[string]any{}})
	}
	NewExecutor(r, cfg).ExecuteBatch(context.Background(), calls)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
