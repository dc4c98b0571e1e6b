package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/danskrecall/internal"
)

// flagKeys maps command-line flags to their config file keys
var flagKeys = map[string]string{
	"input":              "paths.input",
	"output":             "paths.output",
	"media-dir":          "paths.media",
	"cache-dir":          "paths.cache",
	"base-url":           "fetch.base_url",
	"renderer":           "fetch.renderer",
	"timeout":            "fetch.timeout",
	"settle-delay":       "fetch.settle_delay",
	"retries":            "fetch.retries",
	"retry-delay":        "fetch.retry_delay",
	"breaker-threshold":  "fetch.breaker_threshold",
	"refresh-cache":      "fetch.refresh_cache",
	"max-audio-bytes":    "audio.max_bytes",
	"apkg":               "anki.apkg",
	"deck-name":          "anki.deck_name",
	"tts-fallback":       "tts.fallback",
	"openai-model":       "tts.openai_model",
	"openai-voice":       "tts.openai_voice",
	"openai-speed":       "tts.openai_speed",
	"openai-instruction": "tts.openai_instruction",
	"verbose":            "log.verbose",
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "danskrecall [input.csv]",
		Short: "Danish Anki Flashcard Generator",
		Long: `danskrecall turns a semicolon separated Danish vocabulary list into
Anki import files with pronunciation audio from ordnet.dk (Den Danske Ordbog).

Dictionary pages are cached on disk and audio files already present in the
Anki media folder are reused, so re-running the same input is cheap.

Examples:
  danskrecall                                  # Read data/input/danish_vocab_input.csv
  danskrecall words.csv -o out                 # Custom input and output directory
  danskrecall --renderer chrome words.csv      # Render pages with headless Chrome
  danskrecall --apkg --deck-name "Dansk A2"    # Also build an .apkg package`,
		Args:          cobra.MaximumNArgs(1),
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.danskrecall.yaml)")

	cmd.Flags().StringVarP(&flags.InputFile, "input", "i", flags.InputFile, "Semicolon separated vocabulary file")
	cmd.Flags().StringVarP(&flags.OutputDir, "output", "o", flags.OutputDir, "Output directory for the CSV files")
	cmd.Flags().StringVar(&flags.MediaDir, "media-dir", flags.MediaDir, "Anki collection.media directory receiving the audio")
	cmd.Flags().StringVar(&flags.CacheDir, "cache-dir", flags.CacheDir, "Directory for cached dictionary pages")

	cmd.Flags().StringVar(&flags.BaseURL, "base-url", flags.BaseURL, "Dictionary lookup URL, the word is appended")
	cmd.Flags().Var(&flags.Renderer, "renderer", "Page renderer: http or chrome (headless Chrome)")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", flags.Timeout, "Timeout per network request")
	cmd.Flags().DurationVar(&flags.SettleDelay, "settle-delay", flags.SettleDelay, "Time the chrome renderer waits for the page to settle")
	cmd.Flags().UintVar(&flags.Retries, "retries", flags.Retries, "Retries for failed requests")
	cmd.Flags().DurationVar(&flags.RetryDelay, "retry-delay", flags.RetryDelay, "Delay between retries")
	cmd.Flags().Uint32Var(&flags.BreakerThreshold, "breaker-threshold", flags.BreakerThreshold, "Consecutive lookup failures before further lookups fail fast (0 disables)")
	cmd.Flags().BoolVar(&flags.RefreshCache, "refresh-cache", false, "Ignore cached dictionary pages and fetch them again")
	cmd.Flags().BoolVar(&flags.ArchiveCache, "archive-cache", false, "Move the page cache to an archive directory and exit")
	cmd.Flags().Int64Var(&flags.MaxAudioBytes, "max-audio-bytes", flags.MaxAudioBytes, "Largest accepted audio download")

	cmd.Flags().BoolVar(&flags.APKG, "apkg", false, "Also generate an Anki package (.apkg)")
	cmd.Flags().StringVar(&flags.DeckName, "deck-name", flags.DeckName, "Deck name for APKG export")

	cmd.Flags().BoolVar(&flags.TTSFallback, "tts-fallback", false, "Synthesize audio with OpenAI TTS when the dictionary has none")
	cmd.Flags().StringVar(&flags.OpenAIModel, "openai-model", flags.OpenAIModel, "OpenAI TTS model: tts-1, tts-1-hd, gpt-4o-mini-tts")
	cmd.Flags().StringVar(&flags.OpenAIVoice, "openai-voice", flags.OpenAIVoice, "OpenAI voice: alloy, ash, ballad, coral, echo, fable, onyx, nova, sage, shimmer, verse")
	cmd.Flags().Float64Var(&flags.OpenAISpeed, "openai-speed", flags.OpenAISpeed, "OpenAI speech speed (0.25 to 4.0)")
	cmd.Flags().StringVar(&flags.OpenAIInstruction, "openai-instruction", "", "Voice instructions for gpt-4o-mini-tts model")

	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding flag %s: %v\n", name, err)
		}
	}
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".danskrecall" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".danskrecall")
	}

	// DANSKRECALL_FETCH_TIMEOUT overrides fetch.timeout and so on
	viper.SetEnvPrefix("DANSKRECALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// ApplyConfig copies the effective values into flags. Explicit flags win
// over the environment, which wins over the config file.
func ApplyConfig(flags *Flags) error {
	flags.InputFile = viper.GetString("paths.input")
	flags.OutputDir = viper.GetString("paths.output")
	flags.MediaDir = viper.GetString("paths.media")
	flags.CacheDir = viper.GetString("paths.cache")

	flags.BaseURL = viper.GetString("fetch.base_url")
	if err := flags.Renderer.Set(viper.GetString("fetch.renderer")); err != nil {
		return fmt.Errorf("invalid renderer: %w", err)
	}
	flags.Timeout = viper.GetDuration("fetch.timeout")
	flags.SettleDelay = viper.GetDuration("fetch.settle_delay")
	flags.Retries = viper.GetUint("fetch.retries")
	flags.RetryDelay = viper.GetDuration("fetch.retry_delay")
	flags.BreakerThreshold = viper.GetUint32("fetch.breaker_threshold")
	flags.RefreshCache = viper.GetBool("fetch.refresh_cache")
	flags.MaxAudioBytes = viper.GetInt64("audio.max_bytes")

	flags.APKG = viper.GetBool("anki.apkg")
	flags.DeckName = viper.GetString("anki.deck_name")

	flags.TTSFallback = viper.GetBool("tts.fallback")
	flags.OpenAIModel = viper.GetString("tts.openai_model")
	flags.OpenAIVoice = viper.GetString("tts.openai_voice")
	flags.OpenAISpeed = viper.GetFloat64("tts.openai_speed")
	if instruction := viper.GetString("tts.openai_instruction"); instruction != "" {
		flags.OpenAIInstruction = instruction
	}

	flags.Verbose = viper.GetBool("log.verbose")
	return nil
}

// SetupLogging installs the default slog logger on stderr
func SetupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("tts.openai_key")
}

// GetOpenAIBaseURL returns a custom OpenAI endpoint, empty for the public API
func GetOpenAIBaseURL() string {
	return viper.GetString("tts.openai_base_url")
}
