package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	httpdelivery "github.com/chetanchaudhari789/MOBO-sub000/services/replication/delivery/http"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/infrastructure/messaging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Mirror live writes into the dual-write target",
		Long: `Runs the dual-write dispatcher fed by MongoDB change streams and/or Kafka,
and serves the admin API (failure counters, drift, reconciliation, metrics).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	a, err := newApp(ctx, root.configFile)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	cfg := a.cfg
	nt, err := cfg.Target(cfg.DualWrite.Target)
	if err != nil {
		return err
	}
	stack, err := a.openTarget(ctx, nt)
	if err != nil {
		return err
	}
	defer stack.Close()

	dispatcher := usecase.NewDispatcher(
		cfg.DualWrite.DispatcherConfig,
		stack.processor,
		stack.client,
		usecase.NewFailureCounter(),
		a.logger.WithSchema(stack.client.Schema()),
		a.metrics,
	)
	// queued work keeps draining after the signal until Close gives up
	dispatcher.Start(context.WithoutCancel(ctx))

	checks := map[string]httpdelivery.HealthCheck{
		"mongodb":  a.mongo.Health,
		"postgres": stack.client.Health,
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		server := httpdelivery.NewServer(
			cfg.HTTP,
			stack.client.Schema(),
			cfg.Service.Version,
			dispatcher,
			a.verifier(stack),
			checks,
			a.logger,
			a.metrics,
		)
		g.Go(func() error { return server.Run(gctx) })
	}

	if cfg.DualWrite.ChangeStream.Enabled {
		watcher := messaging.NewChangeStreamWatcher(a.mongo, dispatcher, cfg.DualWrite.ChangeStream, a.logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Kafka.Enabled {
		consumer := messaging.NewKafkaChangeConsumer(cfg.Kafka, dispatcher, a.logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.metrics.SetQueueDepth(dispatcher.QueueDepth())
			}
		}
	})

	a.logger.Info("Dual-write service running",
		logging.String("target", nt.Name),
		logging.Bool("dual_write_enabled", dispatcher.Enabled()),
		logging.Bool("change_stream", cfg.DualWrite.ChangeStream.Enabled),
		logging.Bool("kafka", cfg.Kafka.Enabled))

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		a.logger.Error("Dispatcher shutdown incomplete", logging.Err(err))
	}

	failures := dispatcher.Failures()
	if len(failures) > 0 {
		a.logger.Warn("Dual-write failures at shutdown", logging.Any("failures", failures))
	}
	return runErr
}
