package oracle

import (
	"context"
	"fmt"

	"knowtree/internal/config"
	"knowtree/internal/logging"
	"knowtree/internal/types"
)

// NewClient builds an oracle client from configuration.
func NewClient(ctx context.Context, cfg *config.Config) (types.OracleClient, error) {
	oc := cfg.Oracle

	switch oc.Provider {
	case "moonshot", "":
		mc := DefaultMoonshotConfig(oc.APIKey)
		if oc.BaseURL != "" {
			mc.BaseURL = oc.BaseURL
		}
		if oc.Model != "" {
			mc.Model = oc.Model
		}
		if oc.MaxRetries > 0 {
			mc.MaxRetries = oc.MaxRetries
		}
		mc.Timeout = cfg.GetOracleTimeout()
		logging.Boot("Oracle provider: moonshot (model=%s)", mc.Model)
		return NewMoonshotClient(mc), nil

	case "gemini":
		client, err := NewGeminiClient(ctx, oc.APIKey, oc.Model)
		if err != nil {
			return nil, err
		}
		logging.Boot("Oracle provider: gemini (model=%s)", client.GetModel())
		return client, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, oc.Provider)
	}
}
