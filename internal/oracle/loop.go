package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"knowtree/internal/logging"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

// ToolLoop drives one conversation until the oracle stops requesting
// tool invocations or the step budget runs out. Tool calls inside the
// loop run sequentially; batch parallelism belongs to the executor.
type ToolLoop struct {
	client   types.OracleClient
	registry *tools.Registry
	maxSteps int

	// OnToolCall, if set, fires before each invocation.
	OnToolCall func(call types.ToolCall)

	// OnToolResult, if set, fires after each invocation with the
	// transcript content (tool output or error string).
	OnToolResult func(call types.ToolCall, content string, failed bool)
}

// LoopResult is the outcome of one loop run.
type LoopResult struct {
	// Final is the last oracle response, whether the conversation
	// converged or the budget ran out.
	Final *types.OracleResponse

	// Messages is the full transcript including tool turns.
	Messages []types.Message

	// ToolCalls collects every invocation the oracle requested, in order.
	ToolCalls []types.ToolCall

	// Steps is the number of oracle round trips made.
	Steps int

	// BudgetExhausted is true when the loop stopped on the step budget
	// while the oracle was still requesting tools.
	BudgetExhausted bool
}

// NewToolLoop creates a loop over the given client and registry.
func NewToolLoop(client types.OracleClient, registry *tools.Registry, maxSteps int) *ToolLoop {
	if maxSteps < 1 {
		maxSteps = 20
	}
	return &ToolLoop{
		client:   client,
		registry: registry,
		maxSteps: maxSteps,
	}
}

// Run executes the conversation. Per-invocation failures are fed back
// to the oracle as error strings, not surfaced as Go errors; only
// oracle transport failures abort the run.
func (l *ToolLoop) Run(ctx context.Context, req types.ConverseRequest) (*LoopResult, error) {
	messages := make([]types.Message, len(req.Messages))
	copy(messages, req.Messages)

	result := &LoopResult{}

	for step := 0; step < l.maxSteps; step++ {
		req.Messages = messages
		resp, err := l.client.Converse(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("oracle call failed at step %d: %w", step+1, err)
		}
		result.Final = resp
		result.Steps = step + 1

		if !resp.HasToolCalls() {
			result.Messages = messages
			return result, nil
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, call)
			if l.OnToolCall != nil {
				l.OnToolCall(call)
			}

			content, failed := l.invoke(ctx, call)
			if l.OnToolResult != nil {
				l.OnToolResult(call, content, failed)
			}

			messages = append(messages, types.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	logging.ToolsWarn("Tool loop: step budget (%d) exhausted, returning last response", l.maxSteps)
	result.Messages = messages
	result.BudgetExhausted = true
	return result, nil
}

// invoke runs one tool call. Malformed arguments degrade to an empty
// argument set so a single bad encoding does not kill the whole
// conversation; unknown tools and execution errors become error
// strings the oracle can react to.
func (l *ToolLoop) invoke(ctx context.Context, call types.ToolCall) (content string, failed bool) {
	args := call.Input
	if args == nil {
		args = map[string]any{}
		if call.RawInput != "" {
			if err := json.Unmarshal([]byte(call.RawInput), &args); err != nil {
				logging.ToolsWarn("Tool loop: call %s (%s): malformed arguments, using empty set: %v",
					call.ID, call.Name, err)
				args = map[string]any{}
			}
		}
	}

	tool := l.registry.Get(call.Name)
	if tool == nil {
		return fmt.Sprintf("Error: unknown tool %q", call.Name), true
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", call.Name, err), true
	}
	return out, false
}
