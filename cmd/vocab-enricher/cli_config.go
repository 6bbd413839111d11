package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	configpkg "github.com/minhyannv/vocab-enricher/pkg/config"
	"github.com/minhyannv/vocab-enricher/pkg/enricher"
	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
)

const defaultEnvFile = ".env.dev"

type runFunc func(ctx context.Context, cfg configpkg.Config, opts ...enricher.Option) (enricher.Report, error)

type cliFlags struct {
	envFile      string
	promptFile   string
	persist      string
	merge        string
	vocabularyID string
	locale       string
	model        string
	engineURL    string
	timeout      time.Duration
	verbose      bool
}

func newRootCommand(run runFunc, stderr io.Writer, report *enricher.Report) *cobra.Command {
	defaults := configpkg.DefaultConfig()
	flags := cliFlags{}

	cmd := &cobra.Command{
		Use:           "vocab-enricher",
		Short:         "Fill an app's business vocabulary with model-generated synonyms",
		Long:          "vocab-enricher asks a language model for synonyms of every master measure and dimension\nof an app and stores them in the app's business vocabulary.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := parseCLIConfig(flags, cmd.Flags().Changed("env-file"))
			if err != nil {
				return err
			}
			cfg.Logger = loggerpkg.NewWriterLogger(stderr, cfg.Verbose)
			r, err := run(cmd.Context(), cfg)
			*report = r
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.envFile, "env-file", defaultEnvFile, "Dotenv file with connection settings (process env wins)")
	f.StringVar(&flags.promptFile, "prompt-file", "", "YAML file overriding the synonym prompt parameters")
	f.StringVar(&flags.persist, "persist", defaults.Persist, "When to write the vocabulary: per-item or once")
	f.StringVar(&flags.merge, "merge", defaults.Merge, "How to treat existing entries: replace or merge")
	f.StringVar(&flags.vocabularyID, "vocabulary-id", defaults.VocabularyID, "Id of the vocabulary object")
	f.StringVar(&flags.locale, "locale", defaults.Locale, "Locale of the vocabulary")
	f.StringVar(&flags.model, "model", "", "Model name (default $OPENAI_MODEL or "+defaults.Model+")")
	f.StringVar(&flags.engineURL, "engine-url", "", "Engine WebSocket URL (default wss://$QLIK_CLOUD_TENANT/app/$QLIK_CLOUD_APPID)")
	f.DurationVar(&flags.timeout, "timeout", defaults.Timeout, "Timeout for each remote call")
	f.BoolVar(&flags.verbose, "verbose", false, "Log engine traffic and prompts")
	return cmd
}

// parseCLIConfig loads the dotenv file and environment into a Config and
// applies flag overrides.
func parseCLIConfig(flags cliFlags, envFileExplicit bool) (configpkg.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || envFileExplicit {
				return configpkg.Config{}, fmt.Errorf("load env file %s: %w", flags.envFile, err)
			}
		}
	}

	cfg := configpkg.DefaultConfig()
	cfg.Tenant = env(configpkg.EnvTenant)
	cfg.AppID = env(configpkg.EnvAppID)
	cfg.EngineAPIKey = env(configpkg.EnvEngineAPIKey)
	cfg.EngineURL = env(configpkg.EnvEngineURL)
	cfg.OpenAIAPIKey = env(configpkg.EnvOpenAIAPIKey)
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = env(configpkg.EnvOpenAIAPIKey2)
	}
	cfg.OpenAIBaseURL = env(configpkg.EnvOpenAIBaseURL)
	if model := env(configpkg.EnvOpenAIModel); model != "" {
		cfg.Model = model
	}

	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.engineURL != "" {
		cfg.EngineURL = flags.engineURL
	}
	cfg.PromptFile = flags.promptFile
	cfg.Persist = flags.persist
	cfg.Merge = flags.merge
	cfg.VocabularyID = flags.vocabularyID
	cfg.Locale = flags.locale
	cfg.Timeout = flags.timeout
	cfg.Verbose = flags.verbose
	return configpkg.Normalize(cfg), nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
