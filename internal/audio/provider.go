package audio

import (
	"context"
	"fmt"
)

// Provider defines the interface for text-to-speech providers used when the
// dictionary has no recording for a word
type Provider interface {
	// GenerateAudio generates audio from text and saves it to the specified file
	GenerateAudio(ctx context.Context, text string, outputFile string) error

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() error
}

// Config holds configuration for text-to-speech providers
type Config struct {
	Provider string // Provider name: "openai"

	// OpenAI-specific settings
	OpenAIKey         string
	OpenAIBaseURL     string  // Empty means the public API
	OpenAIModel       string  // "tts-1", "tts-1-hd", or "gpt-4o-mini-tts"
	OpenAIVoice       string  // "alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"
	OpenAISpeed       float64 // 0.25 to 4.0
	OpenAIInstruction string  // Voice instructions for gpt-4o-mini-tts model
}

// DefaultProviderConfig returns default configuration
func DefaultProviderConfig() *Config {
	return &Config{
		Provider:          "openai",
		OpenAIModel:       "gpt-4o-mini-tts",
		OpenAIVoice:       "alloy",
		OpenAISpeed:       1.0,
		OpenAIInstruction: "You are speaking Danish (dansk). Pronounce the word with standard Danish pronunciation (rigsdansk), including stød where it belongs. Speak slowly and clearly for language learners.",
	}
}

// NewProvider creates the appropriate audio provider based on configuration
func NewProvider(config *Config) (Provider, error) {
	if config == nil {
		config = DefaultProviderConfig()
	}

	switch config.Provider {
	case "openai":
		provider, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown audio provider: %s", config.Provider)
	}
}
