// Package oracle is the single gateway to the external reasoning
// service. All prerequisite classification, enrichment, and narrative
// calls go through an OracleClient; providers are selected by config
// and normalized to one response shape.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/logging"
	"knowtree/internal/types"
)

// MoonshotConfig configures the Moonshot chat-completions client.
type MoonshotConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultMoonshotConfig returns sensible defaults.
func DefaultMoonshotConfig(apiKey string) MoonshotConfig {
	return MoonshotConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.moonshot.ai/v1",
		Model:      "kimi-k2-thinking",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}
}

// MoonshotClient implements types.OracleClient against the Moonshot
// OpenAI-compatible chat completions API.
type MoonshotClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client
}

// NewMoonshotClient creates a new Moonshot client.
func NewMoonshotClient(config MoonshotConfig) *MoonshotClient {
	if config.MaxRetries < 1 {
		config.MaxRetries = 3
	}
	return &MoonshotClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      config.Model,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// =============================================================================
// WIRE TYPES (OpenAI-compatible chat completions)
// =============================================================================

type chatMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string         `json:"content"`
			ReasoningContent string         `json:"reasoning_content"`
			ToolCalls        []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Converse sends one conversation round trip.
func (c *MoonshotClient) Converse(ctx context.Context, req types.ConverseRequest) (*types.OracleResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()

	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: API key not configured", ErrAuthentication)
	}

	profile := ProfileFor(req.Mode).apply(req.Sampling)
	body := c.buildRequest(req, profile)

	logging.OracleDebug("[Moonshot] Converse: model=%s mode=%s messages=%d tools=%d",
		c.model, req.Mode, len(body.Messages), len(body.Tools))

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			logging.OracleDebug("[Moonshot] Converse: retry %d after %v: %v", attempt, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d: %s", ErrAuthentication, resp.StatusCode, strings.TrimSpace(string(respBody)))
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		}

		var chatResp chatResponse
		if err := json.Unmarshal(respBody, &chatResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if chatResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
		}
		if len(chatResp.Choices) == 0 {
			return nil, ErrEmptyResponse
		}

		out := normalizeResponse(&chatResp)
		logging.Oracle("[Moonshot] Converse: completed in %v finish=%s tool_calls=%d tokens=%d",
			time.Since(startTime), out.FinishReason, len(out.ToolCalls), out.Usage.TotalTokens)
		return out, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// buildRequest lowers the gateway request onto the wire format.
func (c *MoonshotClient) buildRequest(req types.ConverseRequest, profile ModeProfile) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		wm := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: rawArguments(tc),
				},
			})
		}
		messages = append(messages, wm)
	}

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: profile.Temperature,
		TopP:        profile.TopP,
		MaxTokens:   profile.MaxTokens,
	}
	for _, def := range req.Tools {
		body.Tools = append(body.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return body
}

// normalizeResponse maps the provider reply onto the gateway shape.
// Tool-call arguments that fail to decode keep only their raw form;
// the caller applies its own parse policy.
func normalizeResponse(resp *chatResponse) *types.OracleResponse {
	choice := resp.Choices[0]

	out := &types.OracleResponse{
		Text:      strings.TrimSpace(choice.Message.Content),
		Reasoning: strings.TrimSpace(choice.Message.ReasoningContent),
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}

	switch choice.FinishReason {
	case "tool_calls":
		out.FinishReason = types.FinishToolCalls
	case "length", "max_tokens":
		out.FinishReason = types.FinishLength
	default:
		out.FinishReason = types.FinishStop
	}

	for _, wc := range choice.Message.ToolCalls {
		tc := types.ToolCall{
			ID:       wc.ID,
			Name:     wc.Function.Name,
			RawInput: wc.Function.Arguments,
		}
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(wc.Function.Arguments), &args); err == nil {
			tc.Input = args
		} else {
			logging.OracleDebug("[Moonshot] tool call %s: undecodable arguments kept raw: %v", tc.ID, err)
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	if len(out.ToolCalls) > 0 && out.FinishReason != types.FinishToolCalls {
		out.FinishReason = types.FinishToolCalls
	}

	return out
}

// rawArguments re-encodes a tool call's arguments for the transcript.
func rawArguments(tc types.ToolCall) string {
	if tc.RawInput != "" {
		return tc.RawInput
	}
	if tc.Input == nil {
		return "{}"
	}
	data, err := json.Marshal(tc.Input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// SetModel changes the model used for completions.
func (c *MoonshotClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *MoonshotClient) GetModel() string {
	return c.model
}
