package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowtree/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MoonshotClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultMoonshotConfig("test-key")
	cfg.BaseURL = server.URL
	cfg.Timeout = 5 * time.Second
	return NewMoonshotClient(cfg)
}

func chatReply(t *testing.T, w http.ResponseWriter, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestConverseNormalizesText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2, "system + user")
		assert.Equal(t, "system", req.Messages[0].Role)

		chatReply(t, w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content":           "  yes  ",
					"reasoning_content": "thinking about it",
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	})

	resp, err := client.Converse(context.Background(), types.ConverseRequest{
		System:   "You are a classifier.",
		Messages: []types.Message{{Role: "user", Content: "Is arithmetic foundational?"}},
		Mode:     types.ModeFast,
	})
	require.NoError(t, err)

	assert.Equal(t, "yes", resp.Text)
	assert.Equal(t, "thinking about it", resp.Reasoning)
	assert.Equal(t, types.FinishStop, resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.False(t, resp.HasToolCalls())
}

func TestConverseNormalizesToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "",
					"tool_calls": []map[string]any{
						{
							"id":   "call-1",
							"type": "function",
							"function": map[string]any{
								"name":      "write_mathematical_content",
								"arguments": `{"equations": ["E = mc^2"]}`,
							},
						},
						{
							"id":   "call-2",
							"type": "function",
							"function": map[string]any{
								"name":      "design_visual_plan",
								"arguments": `{broken json`,
							},
						},
					},
				},
				"finish_reason": "tool_calls",
			}},
		})
	})

	resp, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "enrich"}},
		Mode:     types.ModeTool,
	})
	require.NoError(t, err)

	require.True(t, resp.HasToolCalls())
	require.Len(t, resp.ToolCalls, 2)

	good := resp.ToolCalls[0]
	assert.Equal(t, "call-1", good.ID)
	require.NotNil(t, good.Input)
	assert.Contains(t, good.Input, "equations")

	bad := resp.ToolCalls[1]
	assert.Nil(t, bad.Input, "undecodable arguments stay raw-only")
	assert.Equal(t, `{broken json`, bad.RawInput)
}

func TestConverseAuthFailureIsFatal(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, int32(1), hits.Load(), "401 must not be retried")
}

func TestConverseRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(t, w, map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"content": "recovered"},
				"finish_reason": "stop",
			}},
		})
	})

	resp, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(3), hits.Load())
}

func TestConverseRetryBudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultMoonshotConfig("test-key")
	cfg.BaseURL = server.URL
	cfg.MaxRetries = 1
	client := NewMoonshotClient(cfg)

	_, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrMaxRetries)
}

func TestConverseEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, map[string]any{"choices": []map[string]any{}})
	})

	_, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestConverseMissingAPIKey(t *testing.T) {
	cfg := DefaultMoonshotConfig("")
	client := NewMoonshotClient(cfg)

	_, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestConverseSendsToolSchemas(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "compose_narrative", req.Tools[0].Function.Name)

		chatReply(t, w, map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"content": "ok"},
				"finish_reason": "stop",
			}},
		})
	})

	_, err := client.Converse(context.Background(), types.ConverseRequest{
		Messages: []types.Message{{Role: "user", Content: "compose"}},
		Tools: []types.ToolDefinition{{
			Name:        "compose_narrative",
			Description: "compose",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
}
