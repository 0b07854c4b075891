package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/snapshot"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
)

var createSnapshotCmd = &cobra.Command{
	Use:   "create-snapshot",
	Short: "Create a snapshot of the database",
	Long:  "Create a snapshot of the KPI database in pg_dump custom format.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		grm, err := openDatabase(cfg, l, false)
		if err != nil {
			return err
		}
		defer closeDatabase(grm)

		snapshotCfg := snapshot.SnapshotConfigFromConfig(cfg)
		snapshotCfg.Progress = true
		svc, err := snapshot.NewSnapshotService(snapshotCfg, pgStorage.NewPostgresAuditStore(grm, l, cfg), l)
		if err != nil {
			return err
		}

		if err := svc.CreateSnapshot(); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	},
}
