package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/adforge/internal/store/rabbitmq"
)

var (
	maxRetries int
	retryDelay time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued generation jobs (DISPATCH_MODE=rabbitmq)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerOptions{
			URL:         cfg.RabbitURL,
			Queue:       cfg.RabbitQueue,
			Concurrency: cfg.WorkerConcurrency,
			MaxRetries:  maxRetries,
			RetryDelay:  retryDelay,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()

		return consumer.Run(ctx, a.runner.Run)
	},
}

func init() {
	workerCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "redeliveries through the retry queue before dead-lettering")
	workerCmd.Flags().DurationVar(&retryDelay, "retry-delay", 10*time.Second, "delay before a failed delivery is retried")
}
