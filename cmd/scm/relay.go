package main

import (
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/scm/internal/app"
)

func newRelayCmd(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish purchase order events from the transactional outbox",
		Long: `Polls outbox_messages and publishes pending events to Kafka (kafka.brokers)
or to the log when no brokers are configured. Events that keep failing go to kafka.dlq_topic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts, "outbox-relay")
			if err != nil {
				return err
			}
			defer s.Close()

			relay, err := app.NewRelay(s.cfg, s.deps.OutboxRepo, s.deps.OutboxMetrics, s.deps.Logger)
			if err != nil {
				return err
			}
			defer relay.Close()

			if once {
				result := relay.Worker.ProcessOnce(cmd.Context())
				s.deps.Logger.WithField("pulled", result.Pulled).
					WithField("sent", result.Sent).
					WithField("failed", result.Failed).
					Info("outbox relay: один проход завершён")
				return nil
			}

			relay.Worker.Run(cmd.Context())
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process one batch and exit")
	return cmd
}
