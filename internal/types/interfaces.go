// Package types defines the shared contracts between the oracle gateway,
// the tool infrastructure, and the exploration/enrichment agents.
// Keeping them here avoids import cycles between those packages.
package types

import "context"

// Mode selects a named parameter profile for an oracle call.
// Callers pick a mode instead of hand-tuning sampling parameters,
// which keeps behavior reproducible across call sites.
type Mode string

const (
	// ModeFast favors quick, low-temperature answers (classification,
	// short structured replies).
	ModeFast Mode = "fast"
	// ModeReasoning enables the provider's extended reasoning. The
	// response may carry a separate reasoning trace.
	ModeReasoning Mode = "reasoning"
	// ModeTool is tuned for tool-driving conversations.
	ModeTool Mode = "tool"
	// ModeSwarm is used for long-form parallel enrichment work.
	ModeSwarm Mode = "swarm"
)

// Message is one role-tagged turn in a conversation history.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role "tool" messages
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant messages that requested tools
}

// ToolDefinition describes a tool that the oracle can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the oracle.
// Input holds the parsed arguments when the gateway could decode them;
// RawInput always preserves the wire form so callers can apply their
// own parse policy (the loop degrades to empty args, the executor
// fails the call).
type ToolCall struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Input    map[string]any `json:"input,omitempty"`
	RawInput string         `json:"raw_input,omitempty"`
}

// UsageMetadata captures token usage counters from the oracle.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Finish reasons normalized across providers.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// OracleResponse is the normalized reply from any provider.
type OracleResponse struct {
	Text         string        `json:"text"`
	Reasoning    string        `json:"reasoning,omitempty"` // present only in ModeReasoning
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FinishReason string        `json:"finish_reason"`
	Usage        UsageMetadata `json:"usage"`
}

// HasToolCalls reports whether the oracle requested tool invocations.
func (r *OracleResponse) HasToolCalls() bool {
	return r.FinishReason == FinishToolCalls && len(r.ToolCalls) > 0
}

// SamplingOverrides lets a caller override individual mode parameters.
// Nil fields keep the mode profile's value.
type SamplingOverrides struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// ConverseRequest is one oracle round trip: a message history, an
// optional system prompt, an optional tool schema set, and a mode.
type ConverseRequest struct {
	Messages []Message
	System   string
	Tools    []ToolDefinition
	Mode     Mode
	Sampling *SamplingOverrides
}

// OracleClient is the single call surface to the external reasoning
// service. Implementations normalize provider responses into
// OracleResponse and own retry/backoff for transient transport errors.
type OracleClient interface {
	Converse(ctx context.Context, req ConverseRequest) (*OracleResponse, error)
}
