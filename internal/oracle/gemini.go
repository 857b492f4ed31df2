package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"knowtree/internal/logging"
	"knowtree/internal/types"
)

// =============================================================================
// GEMINI PROVIDER
// =============================================================================

// GeminiClient implements types.OracleClient on the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini-backed oracle client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required", ErrAuthentication)
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

// Converse sends one conversation round trip.
func (c *GeminiClient) Converse(ctx context.Context, req types.ConverseRequest) (*types.OracleResponse, error) {
	profile := ProfileFor(req.Mode).apply(req.Sampling)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(profile.Temperature)),
		TopP:            genai.Ptr(float32(profile.TopP)),
		MaxOutputTokens: int32(profile.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if profile.EnableReasoning {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, def := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.InputSchema,
			})
		}
		config.Tools = []*genai.Tool{tool}
	}

	contents := buildGeminiContents(req.Messages)

	logging.OracleDebug("[Gemini] Converse: model=%s mode=%s messages=%d tools=%d",
		c.model, req.Mode, len(contents), len(req.Tools))

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	out := normalizeGemini(result)
	logging.Oracle("[Gemini] Converse: finish=%s tool_calls=%d tokens=%d",
		out.FinishReason, len(out.ToolCalls), out.Usage.TotalTokens)
	return out, nil
}

// buildGeminiContents lowers the gateway history onto GenAI contents.
// Tool-result messages need the function name, which Gemini requires
// but our transcript keys by invocation id; the name is recovered from
// the preceding assistant turn.
func buildGeminiContents(messages []types.Message) []*genai.Content {
	nameByCallID := make(map[string]string)
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case "assistant":
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				nameByCallID[tc.ID] = tc.Name
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Input,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case "tool":
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     nameByCallID[m.ToolCallID],
					Response: map[string]any{"result": m.Content},
				},
			}}, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents
}

// normalizeGemini maps a GenAI response onto the gateway shape.
func normalizeGemini(result *genai.GenerateContentResponse) *types.OracleResponse {
	candidate := result.Candidates[0]

	out := &types.OracleResponse{}
	var text, reasoning []string
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			fc := part.FunctionCall
			id := fc.ID
			if id == "" {
				id = uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    id,
				Name:  fc.Name,
				Input: fc.Args,
			})
		case part.Thought:
			reasoning = append(reasoning, part.Text)
		case part.Text != "":
			text = append(text, part.Text)
		}
	}
	out.Text = strings.TrimSpace(strings.Join(text, ""))
	out.Reasoning = strings.TrimSpace(strings.Join(reasoning, ""))

	switch {
	case len(out.ToolCalls) > 0:
		out.FinishReason = types.FinishToolCalls
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		out.FinishReason = types.FinishLength
	default:
		out.FinishReason = types.FinishStop
	}

	if result.UsageMetadata != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}
