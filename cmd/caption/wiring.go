package main

import (
	"log/slog"

	"github.com/MikeSquared-Agency/caption/internal/anthropic"
	"github.com/MikeSquared-Agency/caption/internal/config"
	"github.com/MikeSquared-Agency/caption/internal/coordinator"
	"github.com/MikeSquared-Agency/caption/internal/gemini"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/openai"
)

// newCompleter returns the configured capability, or nil to run on the fallback strategy only.
// A provider without an API key degrades to the fallback rather than refusing to start.
func newCompleter(cfg config.Config, logger *slog.Logger) label.Completer {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return missingKey(logger, cfg.LLMProvider, "ANTHROPIC_API_KEY")
		}
		logger.Info("anthropic client ready", "model", modelOr(cfg.Model, anthropic.DefaultModel))
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model)
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return missingKey(logger, cfg.LLMProvider, "OPENAI_API_KEY")
		}
		logger.Info("openai client ready", "model", modelOr(cfg.Model, openai.DefaultModel))
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.Model)
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return missingKey(logger, cfg.LLMProvider, "GEMINI_API_KEY")
		}
		logger.Info("gemini client ready", "model", modelOr(cfg.Model, gemini.DefaultModel))
		return gemini.NewClient(cfg.GeminiAPIKey, cfg.Model)
	default:
		logger.Warn("no LLM provider configured, labels use the fallback strategy only")
		return nil
	}
}

func missingKey(logger *slog.Logger, provider, env string) label.Completer {
	logger.Warn(env+" not set, labels use the fallback strategy only", "provider", provider)
	return nil
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func coordinatorOptions(cfg config.Config) coordinator.Options {
	return coordinator.Options{
		Threshold:    cfg.LabelThreshold,
		Window:       cfg.LabelWindow,
		Placeholder:  cfg.PlaceholderLabel,
		StoreTimeout: cfg.StoreTimeout,
	}
}
