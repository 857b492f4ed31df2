package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"knowtree/internal/logging"
	"knowtree/internal/types"
)

// ExecutorConfig tunes the concurrent batch executor.
type ExecutorConfig struct {
	// MaxConcurrent is the semaphore width for in-flight calls.
	MaxConcurrent int

	// CallTimeout bounds a single execution attempt.
	CallTimeout time.Duration

	// RetryAttempts is the total attempt budget per call.
	RetryAttempts int

	// RetryBaseDelay is the first backoff delay; it doubles per retry.
	RetryBaseDelay time.Duration
}

// DefaultExecutorConfig returns the executor defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:  100,
		CallTimeout:    60 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: time.Second,
	}
}

// CallResult is the outcome of one tool invocation.
type CallResult struct {
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Content  string        `json:"content,omitempty"`
	Success  bool          `json:"success"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// BatchResult aggregates the outcomes of a batch. The batch itself
// never fails; per-call failures are recorded here.
type BatchResult struct {
	Results    []CallResult  `json:"results"`
	Elapsed    time.Duration `json:"elapsed"`
	Successful int           `json:"successful_count"`
	Failed     int           `json:"failed_count"`
}

// Executor runs batches of tool invocations concurrently under a
// weighted semaphore, with per-call timeout and bounded retry.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
	sem      *semaphore.Weighted
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, cfg ExecutorConfig) *Executor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// ExecuteBatch runs all calls concurrently and waits for every one to
// finish. Results preserve the order of the input slice.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []types.ToolCall) *BatchResult {
	start := time.Now()
	results := make([]CallResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call types.ToolCall) {
			defer wg.Done()

			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[i] = failedResult(call, fmt.Errorf("batch canceled: %w", err), 0)
				return
			}
			defer e.sem.Release(1)

			results[i] = e.ExecuteCall(ctx, call)
		}(i, call)
	}
	wg.Wait()

	batch := &BatchResult{
		Results: results,
		Elapsed: time.Since(start),
	}
	for _, r := range results {
		if r.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}

	logging.Tools("Batch of %d calls done in %v (%d ok, %d failed)",
		len(calls), batch.Elapsed, batch.Successful, batch.Failed)
	return batch
}

// ExecuteCall runs one invocation with retry. Malformed arguments and
// unknown tools fail immediately; execution errors and timeouts are
// retried with doubling backoff up to the attempt budget.
func (e *Executor) ExecuteCall(ctx context.Context, call types.ToolCall) CallResult {
	start := time.Now()

	args, err := decodeArgs(call)
	if err != nil {
		logging.ToolsWarn("Call %s (%s): %v", call.ID, call.Name, err)
		return failedResult(call, err, time.Since(start))
	}

	tool := e.registry.Get(call.Name)
	if tool == nil {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
		logging.ToolsWarn("Call %s: %v", call.ID, err)
		return failedResult(call, err, time.Since(start))
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryBaseDelay << (attempt - 1)
			logging.ToolsDebug("Call %s (%s): retry %d after %v: %v",
				call.ID, call.Name, attempt, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return failedResult(call, ctx.Err(), time.Since(start))
			}
		}

		content, err := e.runOnce(ctx, tool, args)
		if err == nil {
			return CallResult{
				CallID:   call.ID,
				ToolName: call.Name,
				Content:  content,
				Success:  true,
				Elapsed:  time.Since(start),
			}
		}
		lastErr = err
	}

	logging.ToolsWarn("Call %s (%s) failed after %d attempts: %v",
		call.ID, call.Name, e.cfg.RetryAttempts, lastErr)
	return failedResult(call, lastErr, time.Since(start))
}

// runOnce performs a single bounded execution attempt. The tool runs
// in its own goroutine so a stuck Execute cannot block the attempt
// past its deadline.
func (e *Executor) runOnce(ctx context.Context, tool *Tool, args map[string]any) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		content, err := tool.Execute(attemptCtx, args)
		done <- outcome{content, err}
	}()

	select {
	case out := <-done:
		return out.content, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s after %v", ErrCallTimeout, tool.Name, e.cfg.CallTimeout)
	}
}

// decodeArgs resolves a call's arguments, preferring the parsed form.
// A raw payload that fails to decode is a permanent failure.
func decodeArgs(call types.ToolCall) (map[string]any, error) {
	if call.Input != nil {
		return call.Input, nil
	}
	if call.RawInput == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.RawInput), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArgs, err)
	}
	return args, nil
}

func failedResult(call types.ToolCall, err error, elapsed time.Duration) CallResult {
	return CallResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Success:  false,
		Err:      err,
		Error:    err.Error(),
		Elapsed:  elapsed,
	}
}
