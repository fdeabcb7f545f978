package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/kosha-fin/kosha/internal/api"
	"github.com/kosha-fin/kosha/internal/config"
	"github.com/kosha-fin/kosha/internal/dedup"
	"github.com/kosha-fin/kosha/internal/llm"
	"github.com/kosha-fin/kosha/internal/msgsource"
	"github.com/kosha-fin/kosha/internal/notify"
	"github.com/kosha-fin/kosha/internal/pipeline"
	"github.com/kosha-fin/kosha/internal/service"
	"github.com/kosha-fin/kosha/internal/storage"
	"github.com/kosha-fin/kosha/internal/token"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath
	}
	dbPath = config.ExpandPath(dbPath)

	var opts []storage.Option
	if capacity := viper.GetInt("database.processed_capacity"); capacity > 0 {
		opts = append(opts, storage.WithProcessedCapacity(capacity))
	}

	store, err := storage.NewSQLiteStorage(dbPath, opts...)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// createExtractor creates the LLM extraction classifier from configuration.
// Shared by every command that needs classification.
func createExtractor() (service.Classifier, error) {
	provider := viper.GetString("llm.provider")
	if provider == "" {
		provider = "anthropic"
	}

	cfg := llm.Config{
		Provider:    provider,
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 60 // requests per minute
	}

	switch provider {
	case "openai":
		apiKey := viper.GetString("llm.openai_api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key not found in config or OPENAI_API_KEY environment variable")
		}
		cfg.APIKey = apiKey

	case "anthropic":
		apiKey := viper.GetString("llm.anthropic_api_key")
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not found in config or ANTHROPIC_API_KEY environment variable")
		}
		cfg.APIKey = apiKey

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}

	return llm.NewExtractor(cfg, slog.Default())
}

// createDedupEngine builds the dedup engine over the store, honoring the
// configured day-bucket timezone.
func createDedupEngine(store service.Storage) (*dedup.Engine, error) {
	cfg := dedup.Config{}
	if tz := viper.GetString("dedup.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid dedup.timezone %q: %w", tz, err)
		}
		cfg.DayLocation = loc
	}
	return dedup.New(store, cfg, slog.Default()), nil
}

// createTokenSource builds the bearer token source. A token configured
// directly (flag, env, config) wins; otherwise the durable token file is
// used so headless invocations can refresh on their own.
func createTokenSource() (service.TokenSource, error) {
	if value := viper.GetString("api.token"); value != "" {
		return &token.Static{Value: value}, nil
	}

	path := viper.GetString("api.token_path")
	if path == "" {
		path = config.DefaultTokenPath
	}
	return token.NewFileSource(
		config.ExpandPath(path),
		viper.GetString("api.token_url"),
		viper.GetString("api.client_id"),
	)
}

// createAPIClient builds the remote transaction backend client.
func createAPIClient(tokens service.TokenSource) (service.TransactionAPI, error) {
	baseURL := viper.GetString("api.base_url")
	return api.New(baseURL, tokens, slog.Default())
}

// createMessageSource builds the spool-backed message source.
func createMessageSource() (service.MessageSource, error) {
	dir := viper.GetString("messages.spool_dir")
	if dir == "" {
		dir = config.DefaultSpoolDir
	}
	return msgsource.NewSpool(config.ExpandPath(dir), slog.Default())
}

// createNotifier builds the category review notifier. Without a spool
// path the requests surface only in the log.
func createNotifier() (service.Notifier, error) {
	path := viper.GetString("notifications.path")
	if path == "" {
		path = config.DefaultNotifyPath
	}
	return notify.NewSpoolNotifier(config.ExpandPath(path), slog.Default())
}

// createPipeline wires the full ingestion pipeline for a command. The
// token source lives inside the API client; nothing else resolves tokens.
func createPipeline(store service.Storage) (*pipeline.Pipeline, *dedup.Engine, service.Classifier, service.TransactionAPI, error) {
	dedupEngine, err := createDedupEngine(store)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	classifier, err := createExtractor()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	tokens, err := createTokenSource()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	apiClient, err := createAPIClient(tokens)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	notifier, err := createNotifier()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	p := pipeline.New(pipeline.Deps{
		Store:      store,
		Dedup:      dedupEngine,
		Classifier: classifier,
		API:        apiClient,
		Notifier:   notifier,
		Logger:     slog.Default(),
	}, pipeline.Config{
		ConfidenceFloor: viper.GetFloat64("pipeline.confidence_floor"),
	})
	return p, dedupEngine, classifier, apiClient, nil
}
