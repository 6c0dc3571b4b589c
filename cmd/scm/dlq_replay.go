package main

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/scm/internal/app"
	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/scm/internal/version"
)

var errNoBrokers = errors.New("dlq-replay: kafka.brokers is not configured")

func newDLQReplayCmd(opts *rootOptions) *cobra.Command {
	var (
		limit       int
		fromNewest  bool
		idleTimeout time.Duration
		execute     bool
	)

	cmd := &cobra.Command{
		Use:   "dlq-replay",
		Short: "Replay purchase order events from the dead letter topic",
		Long: `Reads kafka.dlq_topic and republishes the original outbox events to kafka.topic.
Runs in dry-run mode unless --execute is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("dlq-replay: --limit must be > 0, got %d", limit)
			}

			cfg, err := app.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return errNoBrokers
			}
			logCloser, err := app.SetupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			logger := log.WithField("component", "dlq-replay")

			var publisher domain.OutboxPublisher
			if execute {
				producer, err := kafka.NewProducer(cfg.Kafka.Brokers, version.ClientID("scm-dlq-replay"))
				if err != nil {
					return err
				}
				defer producer.Close()
				publisher = kafka.NewOutboxPublisher(producer, cfg.Kafka.Topic)
			}

			replayer, err := kafka.NewDLQReplayer(cfg.Kafka.Brokers, kafka.ReplayConfig{
				SourceTopic: cfg.Kafka.DLQTopic,
				Limit:       limit,
				FromNewest:  fromNewest,
				IdleTimeout: idleTimeout,
				Execute:     execute,
			}, publisher, logger)
			if err != nil {
				return err
			}
			defer replayer.Close()

			stats, err := replayer.Run(cmd.Context())
			if err != nil {
				return err
			}

			mode := "dry-run"
			if execute {
				mode = "execute"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "dlq-replay %s: processed=%d replayed=%d skipped=%d\n",
				mode, stats.Processed, stats.Replayed, stats.Skipped)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of DLQ messages to process")
	cmd.Flags().BoolVar(&fromNewest, "from-newest", false, "start from the newest messages of each partition")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 2*time.Second, "stop reading a partition after this idle period")
	cmd.Flags().BoolVar(&execute, "execute", false, "publish messages instead of dry-run")
	return cmd
}
