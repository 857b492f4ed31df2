package oracle

import "knowtree/internal/types"

// ModeProfile is the concrete parameter set behind a types.Mode. Each
// mode is an explicit record built by its own factory so that call
// sites never hand-tune sampling parameters.
type ModeProfile struct {
	Temperature float64
	TopP        float64
	MaxTokens   int

	// EnableReasoning asks the provider for an extended reasoning
	// trace where supported.
	EnableReasoning bool
}

// FastProfile is for quick classification and short structured replies.
func FastProfile() ModeProfile {
	return ModeProfile{
		Temperature: 0.1,
		TopP:        0.95,
		MaxTokens:   1024,
	}
}

// ReasoningProfile enables the provider's deep reasoning.
func ReasoningProfile() ModeProfile {
	return ModeProfile{
		Temperature:     0.6,
		TopP:            0.95,
		MaxTokens:       16384,
		EnableReasoning: true,
	}
}

// ToolProfile is tuned for tool-driving conversations.
func ToolProfile() ModeProfile {
	return ModeProfile{
		Temperature: 0.3,
		TopP:        0.95,
		MaxTokens:   8192,
	}
}

// SwarmProfile is for long-form parallel enrichment work.
func SwarmProfile() ModeProfile {
	return ModeProfile{
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   8192,
	}
}

// ProfileFor resolves a mode to its profile. Unknown modes get the
// fast profile.
func ProfileFor(mode types.Mode) ModeProfile {
	switch mode {
	case types.ModeReasoning:
		return ReasoningProfile()
	case types.ModeTool:
		return ToolProfile()
	case types.ModeSwarm:
		return SwarmProfile()
	default:
		return FastProfile()
	}
}

// apply folds caller overrides into the profile. Nil fields keep the
// profile's value.
func (p ModeProfile) apply(s *types.SamplingOverrides) ModeProfile {
	if s == nil {
		return p
	}
	if s.Temperature != nil {
		p.Temperature = *s.Temperature
	}
	if s.TopP != nil {
		p.TopP = *s.TopP
	}
	if s.MaxTokens > 0 {
		p.MaxTokens = s.MaxTokens
	}
	return p
}
