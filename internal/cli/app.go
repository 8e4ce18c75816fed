package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/adforge/internal/ai"
	"github.com/suPer8Hu/adforge/internal/assets"
	"github.com/suPer8Hu/adforge/internal/config"
	"github.com/suPer8Hu/adforge/internal/crawl"
	"github.com/suPer8Hu/adforge/internal/creation"
	"github.com/suPer8Hu/adforge/internal/db"
	"github.com/suPer8Hu/adforge/internal/jobs"
	"github.com/suPer8Hu/adforge/internal/media"
	"github.com/suPer8Hu/adforge/internal/project"
	"github.com/suPer8Hu/adforge/internal/retry"
	"github.com/suPer8Hu/adforge/internal/store/redisstore"
	"github.com/suPer8Hu/adforge/internal/usage"
	"github.com/suPer8Hu/adforge/internal/users"
)

// app holds everything both the API and the worker need.
type app struct {
	db        *gorm.DB
	redis     *redisstore.Store
	catalog   *assets.Catalog
	store     *jobs.Store
	runner    *jobs.Runner
	creations *creation.Service
	files     *media.FileStore
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	}
}

func buildApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// 1) storage
	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.db = gdb
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	a.redis = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	a.closers = append(a.closers, a.redis.Close)
	if err := a.redis.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	creations, err := creationStore(ctx, cfg, gdb, a)
	if err != nil {
		return nil, err
	}
	a.creations = creation.NewService(creations, users.NewRepo(gdb), project.NewRepo(gdb), log)

	// 2) vendors
	primary, fallback, err := chatProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	retryOpts := retry.Options{Attempts: cfg.RetryAttempts, InitialDelay: cfg.RetryInitialDelay}

	files, err := media.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	a.files = files

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	deps := assets.Deps{
		Chat: assets.NewChatRunner(primary, fallback, retryOpts, log),
		Predictor: media.NewReplicate(media.ReplicateOptions{
			APIKey:     cfg.ReplicateAPIKey,
			BaseURL:    cfg.ReplicateBaseURL,
			HTTPClient: httpClient,
			Logger:     log,
		}),
		Background: media.NewClipDrop(cfg.ClipDropBaseURL, cfg.ClipDropAPIKey, httpClient),
		Fetcher:    media.NewFetcher(media.FetcherOptions{Timeout: time.Minute}),
		Media:      files,
		Retry:      retryOpts,
		ImageModel: cfg.ReplicateImageModel,
		VideoModel: cfg.ReplicateVideoModel,
		Log:        log,
	}
	if cfg.ApifyToken != "" {
		deps.Crawler = crawl.NewApify(cfg.ApifyBaseURL, cfg.ApifyToken, cfg.ApifyActor, httpClient)
	} else {
		log.Info().Msg("APIFY_TOKEN not set, url context disabled")
	}
	a.catalog = assets.NewCatalog(deps)

	var moderator ai.Moderator = ai.NopModerator{}
	if cfg.ModerationEnabled && cfg.OpenAIAPIKey != "" {
		moderator = ai.NewOpenAIModerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	}

	// 3) jobs
	a.store = jobs.NewStore(a.redis.Client(), cfg.JobTTL)
	a.runner = jobs.NewRunner(a.store, a.catalog, moderator, usage.NewService(gdb), cfg.WorkerTimeout, log)

	ok = true
	return a, nil
}

func creationStore(ctx context.Context, cfg config.Config, gdb *gorm.DB, a *app) (creation.Store, error) {
	switch cfg.CreationStore {
	case "", "sql":
		return creation.NewRepo(gdb), nil
	case "mongo":
		client, err := creation.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		return creation.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
	default:
		return nil, fmt.Errorf("unsupported CREATION_STORE=%q", cfg.CreationStore)
	}
}

// chatProviders resolves the primary model and, when configured, the
// stronger fallback model. AI_FALLBACK_MODEL may name another provider as
// "provider:model".
func chatProviders(ctx context.Context, cfg config.Config) (ai.Provider, ai.Provider, error) {
	reg := providerRegistry(cfg)

	primary, err := reg.Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.AIFallbackModel) == "" {
		return primary, nil, nil
	}
	fallback, err := reg.Resolve(ctx, cfg.AIFallbackModel, cfg.AIProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback model: %w", err)
	}
	return primary, fallback, nil
}

func providerRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY is required")
		}
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("openai", func(_ context.Context, model string) (ai.Provider, error) {
		p, err := ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	return reg
}
