package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/gangplankhq/gangplank/pkg/cmd"
	"github.com/gangplankhq/gangplank/pkg/counters"
	"github.com/gangplankhq/gangplank/pkg/log"
	"github.com/gangplankhq/gangplank/pkg/services"
)

func main() {
	command := &cli.Command{
		Name:                  "gangplank-ingestor",
		Usage:                 "Consume wizard interaction events and maintain analytics counters",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ingestor-id",
				Aliases: []string{"id"},
				Usage:   "Custom ingestor ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("INGESTOR_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for analytics counters; empty disables the fast path",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ingestorID := command.String("ingestor-id")
			if ingestorID == "" {
				ingestorID = fmt.Sprintf("ingestor-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("ingestor").With("ingestor_id", ingestorID)
			logger.InfoContext(ctx, "Initializing Gangplank Ingestor")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "gangplank-ingestor", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var counterSink services.CounterSink

			if redisURL := command.String("redis-url"); redisURL != "" {
				client, err := counters.NewClientFromEnv(ctx, redisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := client.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()

				counterSink = counters.NewCounters(client, logger)
			}

			statusService := services.NewStatus(persistence, eventBus, logger)
			ingestService := services.NewIngest(persistence, statusService, counterSink, logger)

			ingestor := NewIngestor(ingestorID, eventBus, ingestService, logger)

			return ingestor.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
