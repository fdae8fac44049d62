// README: Wires config into the trip planner (LLM provider, geocoder, TDX token cache and router).
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"transitguide/internal/ai"
	"transitguide/internal/config"
	"transitguide/internal/maps"
	"transitguide/internal/service"
	"transitguide/internal/tdx"
)

// NewLLMProvider returns the backend named by cfg.Provider. The close func
// must be called on shutdown.
func NewLLMProvider(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (ai.LLMProvider, func(), error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := ai.NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini init: %w", err)
		}
		return p, closeLogged("gemini client", p.Close, log), nil
	case config.ProviderOpenAI:
		return ai.NewOpenAIProvider(cfg.OpenAIKey, cfg.Model), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewTripPlanner builds the full pipeline from cfg.
func NewTripPlanner(ctx context.Context, cfg config.Config, log *zap.Logger) (*service.TripPlanner, func(), error) {
	llm, closeLLM, err := NewLLMProvider(ctx, cfg.LLM, log)
	if err != nil {
		return nil, nil, err
	}

	geocoder, err := maps.NewGeocodeService(cfg.GoogleMaps.APIKey, log.Named("geocode"))
	if err != nil {
		closeLLM()
		return nil, nil, fmt.Errorf("maps init: %w", err)
	}

	tokens := tdx.NewTokenCache(cfg.TDX.ClientID, cfg.TDX.ClientSecret)
	router := tdx.NewRouteService(tokens, log.Named("route"))

	planner := service.NewTripPlanner(
		ai.NewExtractor(llm, log.Named("extract")),
		geocoder,
		router,
		ai.NewNarrator(llm, log.Named("narrate")),
		log.Named("planner"),
	)
	return planner, closeLLM, nil
}

// closeLogged adapts an error-returning close for defer, logging the failure.
func closeLogged(name string, closeFn func() error, log *zap.Logger) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Warn("close failed", zap.String("resource", name), zap.Error(err))
		}
	}
}
