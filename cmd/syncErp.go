package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/clients/erp"
	"github.com/zsmith-jtec/AFKPI/pkg/erpSync"
)

var syncErpCmd = &cobra.Command{
	Use:   "sync-erp",
	Short: "Pull jobs, labor and shipped revenue from the ERP connector once",
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

		syncer := newErpSync(app, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout(cfg))
		defer cancel()

		res, err := syncer.Sync(ctx)
		if err != nil {
			return err
		}
		if err := printJson(res); err != nil {
			return err
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d ERP sources failed", res.Failed, len(res.Sources))
		}
		return nil
	},
}

func newErpSync(app *etlApp, cfg *config.Config) *erpSync.ErpSync {
	client := erp.NewErpClient(nil, app.metricsSink, app.logger, cfg)
	return erpSync.NewErpSync(client, app.loader, app.auditStore, app.eventBus, app.metricsSink, app.logger, cfg)
}

// syncTimeout bounds one pass: every source may use its full retry schedule.
func syncTimeout(cfg *config.Config) time.Duration {
	perRequest := cfg.ErpConfig.RequestTimeout
	if perRequest <= 0 {
		perRequest = 2 * time.Minute
	}
	return 5*perRequest + 10*time.Minute
}
