package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/prometheus"
	"github.com/zsmith-jtec/AFKPI/internal/shutdown"
	"github.com/zsmith-jtec/AFKPI/pkg/erpSync"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus/eventBusTypes"
	"go.uber.org/zap"
)

const defaultSyncInterval = time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync from the ERP on a schedule and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		if err := cfg.ValidateErp(); err != nil {
			return err
		}

		app, err := newEtlApp(cfg, l)
		if err != nil {
			return err
		}
		defer app.Close()

		var promServer *prometheus.PrometheusServer
		if cfg.PrometheusConfig.Enabled {
			promServer = prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			promServer.Start()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		consumer := &eventBusTypes.Consumer{
			Id:      "run",
			Context: ctx,
			Channel: make(chan *eventBusTypes.Event, 100),
		}
		app.eventBus.Subscribe(consumer)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			logEvents(ctx, consumer, l)
		}()
		go func() {
			defer wg.Done()
			runSyncLoop(ctx, newErpSync(app, cfg), cfg.ErpConfig.SyncInterval, l)
		}()

		l.Sugar().Infow("Started afkpi",
			zap.Duration("syncInterval", cfg.ErpConfig.SyncInterval),
			zap.Bool("prometheus", cfg.PrometheusConfig.Enabled),
		)

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")
			// an in-flight load rolls back when its context ends
			cancel()
			wg.Wait()
			app.eventBus.Unsubscribe(consumer)

			if promServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				promServer.Shutdown(shutdownCtx)
			}
		}, time.Second, l)
		return nil
	},
}

// runSyncLoop syncs once immediately and then every interval until ctx ends.
func runSyncLoop(ctx context.Context, syncer *erpSync.ErpSync, interval time.Duration, l *zap.Logger) {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := syncer.Sync(ctx)
		if err != nil {
			l.Sugar().Warnw("ERP sync interrupted", zap.Error(err))
		} else if res.Failed > 0 {
			l.Sugar().Warnw("ERP sync finished with failed sources", zap.Int("failed", res.Failed))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logEvents(ctx context.Context, consumer *eventBusTypes.Consumer, l *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-consumer.Channel:
			switch data := event.Data.(type) {
			case *eventBusTypes.LoadCompletedData:
				l.Sugar().Infow("Load completed",
					zap.String("batchId", data.BatchId),
					zap.String("kind", data.Kind),
					zap.String("actor", data.Actor),
					zap.Int("rowsProcessed", data.RowsProcessed),
					zap.Int("rowsSkipped", data.RowsSkipped),
				)
			case *eventBusTypes.ErpSyncCompletedData:
				l.Sugar().Infow("ERP sync completed",
					zap.Strings("sources", data.Sources),
					zap.Strings("failed", data.Failed),
				)
			default:
				l.Sugar().Debugw("Unhandled event", zap.String("eventName", event.Name))
			}
		}
	}
}
