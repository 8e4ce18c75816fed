package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/adforge/internal/config"
	"github.com/suPer8Hu/adforge/internal/db"
	"github.com/suPer8Hu/adforge/internal/httpapi"
	"github.com/suPer8Hu/adforge/internal/httpapi/handlers"
	"github.com/suPer8Hu/adforge/internal/jobs"
	"github.com/suPer8Hu/adforge/internal/store/rabbitmq"
)

var (
	autoMigrate   bool
	authPerMinute int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "run schema migrations on startup")
	serveCmd.Flags().IntVar(&authPerMinute, "auth-rate", 20, "signup/login requests per minute per client ip (0 disables)")
}

func serve(ctx context.Context) error {
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	access, err := config.LoadAccess(cfg.AccessConfigPath)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if autoMigrate {
		if err := db.Migrate(a.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	svc := jobs.NewService(jobs.Options{
		Store:         a.store,
		Composites:    jobs.NewCompositeStore(a.redis.Client(), cfg.CompositeTTL),
		Catalog:       a.catalog,
		Creations:     a.creations,
		Limiter:       a.redis,
		RatePerMinute: cfg.RateLimitPerMin,
		Log:           logger,
	})

	// jobs outlive the request that started them but not the process
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var inline *jobs.InlineDispatcher
	switch cfg.DispatchMode {
	case "", "inline":
		inline = jobs.NewInlineDispatcher(jobsCtx, cfg.WorkerConcurrency, a.runner.Run, logger)
		svc.SetDispatcher(inline)
	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbit publisher: %w", err)
		}
		defer pub.Close()
		svc.SetDispatcher(jobs.NewQueueDispatcher(pub))
	default:
		return fmt.Errorf("unsupported DISPATCH_MODE=%q", cfg.DispatchMode)
	}

	h := handlers.NewHandler(handlers.Deps{
		DB:        a.db,
		Cfg:       cfg,
		Redis:     a.redis,
		Jobs:      svc,
		Catalog:   a.catalog,
		Creations: a.creations,
		Log:       logger,
	})
	r, err := httpapi.NewRouter(h, httpapi.RouterOptions{
		Access:         access,
		StaticDir:      a.files.BasePath(),
		AuthPerMinute:  authPerMinute,
		SlowRequest:    2 * time.Second,
		TrustedProxies: cfg.TrustedProxies,
		Log:            logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("dispatch", cfg.DispatchMode).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	// let inline jobs finish writing their records
	if inline != nil {
		done := make(chan struct{})
		go func() {
			inline.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.WorkerTimeout):
			logger.Warn().Msg("inline jobs still running, cancelling")
			cancelJobs()
			<-done
		}
	}
	return nil
}
