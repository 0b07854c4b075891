package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/snapshot"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
)

var restoreSnapshotCmd = &cobra.Command{
	Use:   "restore-snapshot",
	Short: "Restore database from a snapshot file",
	Long: `Restore the database from a previously created snapshot file.
The snapshot file is expected to be a pg_dump custom format file. The target
database is created when it does not exist.`,
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

		svc, err := snapshot.NewSnapshotService(snapshot.SnapshotConfigFromConfig(cfg), pgStorage.NewPostgresAuditStore(grm, l, cfg), l)
		if err != nil {
			return err
		}

		if err := svc.RestoreSnapshot(); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		return nil
	},
}
