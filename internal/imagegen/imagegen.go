// Package imagegen is the uniform port the orchestrator calls to turn one
// player's prompt into a handful of candidate images, regardless of which
// backing provider is configured.
package imagegen

import (
	"context"
	"errors"
	"time"

	"promptguessr/internal/game"
)

// ContentPolicyError means the prompt itself was rejected by the provider.
// It must reach the caller distinguishably from a transient failure: the
// submitter (and only the submitter) is told, and their prompt is left
// rejected rather than retried.
type ContentPolicyError struct {
	Provider string
	Reason   string
}

func (e *ContentPolicyError) Error() string {
	if e.Reason != "" {
		return "content policy violation: " + e.Reason
	}
	return "content policy violation"
}

// TransientError covers timeouts, rate limits and transport failures: retry
// (possibly on the fallback provider) is reasonable.
type TransientError struct {
	Provider string
	cause    error
}

func (e *TransientError) Error() string {
	if e.cause != nil {
		return "transient generation failure (" + e.Provider + "): " + e.cause.Error()
	}
	return "transient generation failure (" + e.Provider + ")"
}

func (e *TransientError) Unwrap() error { return e.cause }

// IsContentPolicy reports whether err (or something it wraps) is a
// ContentPolicyError.
func IsContentPolicy(err error) bool {
	var cpe *ContentPolicyError
	return errors.As(err, &cpe)
}

// IsTransient reports whether err (or something it wraps) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Generator is the uniform operation every provider implements.
type Generator interface {
	// Generate returns up to count images for prompt, attributed to
	// ownerPlayerID. All returned images have status complete.
	Generate(ctx context.Context, prompt string, count int, ownerPlayerID string) ([]*game.GeneratedImage, error)
	// Name identifies the provider for logging and GeneratedImage.Provider.
	Name() string
}

// Provider names, matching the configuration enumeration.
const (
	ProviderMock        = "mock"
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
)

// Config selects and configures a Generator, mirroring the provider/fallback
// enumeration in the room and game service's configuration surface.
type Config struct {
	Provider        string
	EnableFallback  bool
	FallbackProvider string
	OpenAIAPIKey     string
	OpenAIModel      string
	HuggingFaceAPIKey string
	HuggingFaceModel  string
	HTTPTimeout       time.Duration
}

// New builds the configured Generator, wrapping it in a FallbackGenerator
// when EnableFallback is set and a fallback provider is named.
func New(cfg Config) (Generator, error) {
	primary, err := build(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.EnableFallback || cfg.FallbackProvider == "" {
		return primary, nil
	}
	fallback, err := build(cfg.FallbackProvider, cfg)
	if err != nil {
		return nil, err
	}
	return &FallbackGenerator{primary: primary, fallback: fallback}, nil
}

func build(provider string, cfg Config) (Generator, error) {
	switch provider {
	case ProviderMock, "":
		return NewMockGenerator(), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.HTTPTimeout), nil
	case ProviderHuggingFace:
		return NewHuggingFaceGenerator(cfg.HuggingFaceAPIKey, cfg.HuggingFaceModel, cfg.HTTPTimeout), nil
	default:
		return nil, errors.New("imagegen: unknown provider " + provider)
	}
}
