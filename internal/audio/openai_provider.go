package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"

	"codeberg.org/snonux/danskrecall/internal"
)

// OpenAIProvider implements Provider interface for OpenAI TTS
type OpenAIProvider struct {
	client *openai.Client
	config *Config
}

// NewOpenAIProvider creates a new OpenAI TTS provider
func NewOpenAIProvider(config *Config) (*OpenAIProvider, error) {
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.OpenAIKey)
	if config.OpenAIBaseURL != "" {
		clientConfig.BaseURL = config.OpenAIBaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// GenerateAudio synthesises text and writes it atomically to outputFile
func (p *OpenAIProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	input := preprocessDanishText(text)
	if input == "" {
		return fmt.Errorf("text is empty")
	}

	slog.Default().Debug("OpenAI TTS request",
		"model", p.config.OpenAIModel,
		"voice", p.config.OpenAIVoice,
		"speed", p.config.OpenAISpeed,
		"input", input)

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.OpenAIModel),
		Input:          input,
		Voice:          openai.SpeechVoice(p.config.OpenAIVoice),
		Speed:          p.config.OpenAISpeed,
		ResponseFormat: responseFormat(outputFile),
	}
	if p.config.OpenAIInstruction != "" && supportsInstructions(p.config.OpenAIModel) {
		req.Instructions = p.config.OpenAIInstruction
	}

	response, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "does not have access to model") && supportsInstructions(p.config.OpenAIModel) {
			return fmt.Errorf("OpenAI TTS API error: %w\nNote: The %s model requires access. Try using --openai-model tts-1-hd instead", err, p.config.OpenAIModel)
		}
		return fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	return internal.WriteAtomic(outputFile, func(w io.Writer) error {
		written, err := io.Copy(w, response)
		if err != nil {
			return fmt.Errorf("failed to write audio file: %w", err)
		}
		if written == 0 {
			return fmt.Errorf("no audio data received from OpenAI")
		}
		return nil
	})
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable only checks for a key, a test request would cost credits
func (p *OpenAIProvider) IsAvailable() error {
	if p.config.OpenAIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	return nil
}

func supportsInstructions(model string) bool {
	return model == "gpt-4o-mini-tts" || model == "gpt-4o-mini-audio-preview"
}

func responseFormat(outputFile string) openai.SpeechResponseFormat {
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".wav":
		return openai.SpeechResponseFormatWav
	case ".flac":
		return openai.SpeechResponseFormatFlac
	case ".aac":
		return openai.SpeechResponseFormatAac
	case ".opus":
		return openai.SpeechResponseFormatOpus
	default:
		return openai.SpeechResponseFormatMp3
	}
}

// preprocessDanishText drops punctuation that the TTS engine would otherwise
// read out or turn into odd pauses
func preprocessDanishText(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, punct := range []string{"!", "?", ".", ",", ";", ":", "\"", "'", "(", ")", "[", "]", "{", "}", "–", "—"} {
		cleaned = strings.ReplaceAll(cleaned, punct, "")
	}
	return strings.Join(strings.Fields(cleaned), " ")
}
