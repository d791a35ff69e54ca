// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-agent CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/research-agent/internal/cache"
	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/internal/retrieval"
	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/internal/secrets"
	"github.com/pdiddy/research-agent/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	verbose bool
	logger  = zap.NewNop()
)

// rootCmd is the base command for the research-agent CLI.
var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "Plan, gather, rank, and summarize academic literature on a topic",
	Long: `research-agent turns a research topic into a search plan, queries arXiv,
Semantic Scholar, OpenAlex, and optionally the web concurrently, deduplicates
and ranks what comes back, identifies gaps in coverage, and writes a report.
A completed session can continue interactively: list papers, search for more,
or ask questions grounded in the gathered material.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l

		s, err := secrets.Load(".secrets/", logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Keys()))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-agent.yaml or ~/.config/research-agent/research-agent.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-agent"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"generation.provider", "generation.model", "generation.api_key", "generation.base_url",
		"cache.backend", "cache.path", "cache.redis_addr", "cache.redis_password",
		"sources.enable_web", "sources.tavily_api_key", "sources.openalex_email",
		"retrieval.max_concurrency", "archive.enabled", "archive.path",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults and
// fills credentials from .secrets/. It does not validate.
func loadConfig() (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	loadedSecrets.Apply(&cfg)
	return cfg, nil
}

// providerFlag applies --provider and --model when given.
func providerFlag(cmd *cobra.Command, cfg *types.PipelineConfig) {
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		if types.Provider(p) != cfg.Generation.Provider {
			cfg.Generation.Provider = types.Provider(p)
			cfg.Generation.APIKey = ""
			loadedSecrets.Apply(cfg)
		}
	}
	if m, _ := cmd.Flags().GetString("model"); m != "" {
		cfg.Generation.Model = m
	}
}

func openCache(ctx context.Context, cfg types.PipelineConfig) (*cache.Cache, error) {
	c, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

// buildRetrieval opens the cache and wires the adapters into a coordinator.
func buildRetrieval(ctx context.Context, cfg types.PipelineConfig, client *http.Client) (*retrieval.Coordinator, *cache.Cache, error) {
	c, err := openCache(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	adapters := search.NewAdapters(cfg, client)
	coord := retrieval.New(adapters, c, retrieval.OptionsFromConfig(cfg.Retrieval, cfg.Cache.TTL, logger))
	return coord, c, nil
}

// buildGenerator returns nil when no provider is configured.
func buildGenerator(cfg types.PipelineConfig, client *http.Client) (generation.Generator, error) {
	backend, err := generation.NewBackend(cfg.Generation, client)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, nil
	}
	return generation.NewService(backend, cfg.Generation.Timeout, logger), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var cerr *types.ConfigurationError
		if errors.As(err, &cerr) && cerr.Field == "generation.api_key" {
			fmt.Fprintln(os.Stderr, "Add the key under .secrets/ or run with --provider none.")
		}
		os.Exit(1)
	}
}
