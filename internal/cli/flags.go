package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"codeberg.org/snonux/danskrecall/internal/audio"
	"codeberg.org/snonux/danskrecall/internal/dictionary"
	"codeberg.org/snonux/danskrecall/internal/webclient"
)

// RendererKind selects how dictionary pages are retrieved
type RendererKind string

const (
	RendererHTTP   RendererKind = "http"
	RendererChrome RendererKind = "chrome"
)

var _ pflag.Value = (*RendererKind)(nil)

// String implements pflag.Value
func (r *RendererKind) String() string {
	return string(*r)
}

// Set implements pflag.Value
func (r *RendererKind) Set(value string) error {
	switch RendererKind(value) {
	case RendererHTTP, RendererChrome:
		*r = RendererKind(value)
		return nil
	default:
		return fmt.Errorf("must be %q or %q", RendererHTTP, RendererChrome)
	}
}

// Type implements pflag.Value
func (r *RendererKind) Type() string {
	return "renderer"
}

// Flags holds all command-line flag values
type Flags struct {
	CfgFile string `flag:"config"`

	// Paths
	InputFile string `flag:"input" validate:"required,file"`
	OutputDir string `flag:"output" validate:"required"`
	MediaDir  string `flag:"media-dir" validate:"required"`
	CacheDir  string `flag:"cache-dir" validate:"required"`

	// Dictionary lookup
	BaseURL          string        `flag:"base-url" validate:"required,url"`
	Renderer         RendererKind  `flag:"renderer" validate:"oneof=http chrome"`
	Timeout          time.Duration `flag:"timeout" validate:"gt=0"`
	SettleDelay      time.Duration `flag:"settle-delay" validate:"gte=0"`
	Retries          uint          `flag:"retries" validate:"lte=10"`
	RetryDelay       time.Duration `flag:"retry-delay" validate:"gte=0"`
	BreakerThreshold uint32        `flag:"breaker-threshold"`
	RefreshCache     bool          `flag:"refresh-cache"`
	ArchiveCache     bool          `flag:"archive-cache"`
	MaxAudioBytes    int64         `flag:"max-audio-bytes" validate:"gt=0"`

	// Anki package export
	APKG     bool   `flag:"apkg"`
	DeckName string `flag:"deck-name" validate:"required_if=APKG true"`

	// OpenAI pronunciation fallback
	TTSFallback       bool    `flag:"tts-fallback"`
	OpenAIModel       string  `flag:"openai-model" validate:"required_if=TTSFallback true"`
	OpenAIVoice       string  `flag:"openai-voice" validate:"omitempty,oneof=alloy ash ballad coral echo fable onyx nova sage shimmer verse"`
	OpenAISpeed       float64 `flag:"openai-speed" validate:"gte=0.25,lte=4"`
	OpenAIInstruction string  `flag:"openai-instruction"`

	Verbose bool `flag:"verbose"`
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	ttsConfig := audio.DefaultProviderConfig()
	fetchConfig := dictionary.DefaultConfig()

	return &Flags{
		InputFile:         filepath.Join("data", "input", "danish_vocab_input.csv"),
		OutputDir:         filepath.Join("data", "output"),
		MediaDir:          DefaultMediaDir(),
		CacheDir:          fetchConfig.CacheDir,
		BaseURL:           fetchConfig.BaseURL,
		Renderer:          RendererHTTP,
		Timeout:           webclient.DefaultTimeout,
		SettleDelay:       dictionary.DefaultSettleDelay,
		Retries:           fetchConfig.Retry.Retries,
		RetryDelay:        fetchConfig.Retry.Delay,
		BreakerThreshold:  fetchConfig.BreakerThreshold,
		MaxAudioBytes:     audio.DefaultMaxSizeBytes,
		DeckName:          "Danish Vocabulary",
		OpenAIModel:       ttsConfig.OpenAIModel,
		OpenAIVoice:       ttsConfig.OpenAIVoice,
		OpenAISpeed:       ttsConfig.OpenAISpeed,
		OpenAIInstruction: ttsConfig.OpenAIInstruction,
	}
}

// DefaultMediaDir returns the collection.media folder of the first Anki
// profile on this platform
func DefaultMediaDir() string {
	return mediaDirFor(runtime.GOOS, os.Getenv("APPDATA"))
}

func mediaDirFor(goos, appData string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	var base string
	switch goos {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support", "Anki2")
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		base = filepath.Join(appData, "Anki2")
	default:
		base = filepath.Join(home, ".local", "share", "Anki2")
	}
	return filepath.Join(base, "User 1", "collection.media")
}

// FetchConfig converts the flags into the page fetcher configuration
func (f *Flags) FetchConfig() dictionary.Config {
	config := dictionary.DefaultConfig()
	config.BaseURL = f.BaseURL
	config.CacheDir = f.CacheDir
	config.RefreshCache = f.RefreshCache
	config.Retry = f.RetryPolicy()
	config.BreakerThreshold = f.BreakerThreshold
	return config
}

// RetryPolicy returns the retry policy shared by page and audio requests
func (f *Flags) RetryPolicy() webclient.RetryPolicy {
	return webclient.RetryPolicy{
		Retries: f.Retries,
		Delay:   f.RetryDelay,
	}
}

// DownloadOptions converts the flags into audio downloader options
func (f *Flags) DownloadOptions() *audio.DownloadOptions {
	return &audio.DownloadOptions{
		Timeout:      f.Timeout,
		Retry:        f.RetryPolicy(),
		MaxSizeBytes: f.MaxAudioBytes,
	}
}

// ProviderConfig converts the flags into the TTS fallback configuration
func (f *Flags) ProviderConfig() *audio.Config {
	config := audio.DefaultProviderConfig()
	config.OpenAIKey = GetOpenAIKey()
	config.OpenAIBaseURL = GetOpenAIBaseURL()
	config.OpenAIModel = f.OpenAIModel
	config.OpenAIVoice = f.OpenAIVoice
	config.OpenAISpeed = f.OpenAISpeed
	if f.OpenAIInstruction != "" {
		config.OpenAIInstruction = f.OpenAIInstruction
	}
	return config
}
