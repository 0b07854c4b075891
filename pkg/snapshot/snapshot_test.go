package snapshot

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/tests"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
	"go.uber.org/zap"
)

func baseConfig() *SnapshotConfig {
	return &SnapshotConfig{
		Host:       "localhost",
		Port:       5432,
		DbName:     "afkpi",
		User:       "afkpi",
		Password:   "secret",
		SchemaName: "public",
	}
}

func Test_SnapshotConfigFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DatabaseConfig = config.DatabaseConfig{
		Host:   "db.internal",
		Port:   5433,
		User:   "etl",
		DbName: "kpi",
	}
	cfg.SnapshotConfig.OutputFile = "/backups/kpi.dump"

	sc := SnapshotConfigFromConfig(cfg)
	assert.Equal(t, "db.internal", sc.Host)
	assert.Equal(t, 5433, sc.Port)
	assert.Equal(t, "kpi", sc.DbName)
	assert.Equal(t, "/backups/kpi.dump", sc.OutputFile)
	assert.Equal(t, "", sc.InputFile)
}

func Test_ResolveFilePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.Nil(t, err)

	p, err := resolveFilePath("~/backups/kpi.dump")
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(home, "backups", "kpi.dump"), p)

	p, err = resolveFilePath("")
	require.Nil(t, err)
	assert.Equal(t, "", p)

	p, err = resolveFilePath("kpi.dump")
	require.Nil(t, err)
	assert.True(t, filepath.IsAbs(p))
}

func Test_Validation(t *testing.T) {
	l, _ := zap.NewDevelopment()

	t.Run("Create needs an output file in an existing directory", func(t *testing.T) {
		cfg := baseConfig()
		cfg.OutputFile = filepath.Join(t.TempDir(), "kpi.dump")
		svc, err := NewSnapshotService(cfg, nil, l)
		require.Nil(t, err)
		assert.NoError(t, svc.validateCreateSnapshotConfig())

		cfg = baseConfig()
		svc, _ = NewSnapshotService(cfg, nil, l)
		assert.Error(t, svc.validateCreateSnapshotConfig())

		cfg = baseConfig()
		cfg.OutputFile = filepath.Join(t.TempDir(), "missing", "kpi.dump")
		svc, _ = NewSnapshotService(cfg, nil, l)
		assert.ErrorContains(t, svc.validateCreateSnapshotConfig(), "output directory does not exist")

		cfg = baseConfig()
		cfg.Host = ""
		cfg.OutputFile = filepath.Join(t.TempDir(), "kpi.dump")
		svc, _ = NewSnapshotService(cfg, nil, l)
		assert.Error(t, svc.validateCreateSnapshotConfig())
	})

	t.Run("Restore needs an existing input file", func(t *testing.T) {
		snapshotFile := filepath.Join(t.TempDir(), "kpi.dump")
		require.Nil(t, os.WriteFile(snapshotFile, []byte("PGDMP"), 0644))

		cfg := baseConfig()
		cfg.InputFile = snapshotFile
		svc, err := NewSnapshotService(cfg, nil, l)
		require.Nil(t, err)
		assert.NoError(t, svc.validateRestoreConfig())

		cfg = baseConfig()
		cfg.InputFile = filepath.Dir(snapshotFile)
		svc, _ = NewSnapshotService(cfg, nil, l)
		assert.Error(t, svc.validateRestoreConfig())

		cfg = baseConfig()
		svc, _ = NewSnapshotService(cfg, nil, l)
		assert.Error(t, svc.validateRestoreConfig())
	})
}

func skipWithoutPgTools(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"pg_dump", "pg_restore"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("Skipping, %s not found in PATH", bin)
		}
	}
}

func Test_SetupCommands(t *testing.T) {
	skipWithoutPgTools(t)
	l, _ := zap.NewDevelopment()
	cfg := baseConfig()
	cfg.OutputFile = "/tmp/kpi.dump"
	cfg.InputFile = "/tmp/kpi.dump"
	svc, err := NewSnapshotService(cfg, nil, l)
	require.Nil(t, err)

	dump, err := svc.setupSnapshotDump()
	require.Nil(t, err)
	assert.Contains(t, dump.Options, "--schema=public")

	restore, err := svc.setupRestore()
	require.Nil(t, err)
	assert.Contains(t, restore.Options, "--if-exists")
	assert.Contains(t, restore.Options, "--dbname=afkpi")
}

func Test_WatchFileGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "growing.dump")
	stop := watchFileGrowth(path, "test")
	require.Nil(t, os.WriteFile(path, make([]byte, 1024), 0644))
	time.Sleep(2 * progressPollInterval)
	stop()
	// a second stop is a no-op
	stop()
	assert.Equal(t, int64(1024), fileSize(path))
}

func Test_CreateAndRestoreSnapshot(t *testing.T) {
	if !tests.PostgresTestsEnabled() {
		t.Skip("Skipping postgres test, AFKPI_DATABASE_HOST not set")
	}
	skipWithoutPgTools(t)

	cfg := config.NewConfig()
	cfg.DatabaseConfig = *tests.GetDbConfigFromEnv()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.Nil(t, err)

	dumpFile := filepath.Join(t.TempDir(), "Test_CreateAndRestoreSnapshot.dump")

	t.Run("Create snapshot from a loaded database", func(t *testing.T) {
		dbName, _, grm, err := postgres.GetTestPostgresDatabase(cfg.DatabaseConfig, l)
		require.Nil(t, err)
		t.Cleanup(func() {
			postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
		})

		auditStore := pgStorage.NewPostgresAuditStore(grm, l, cfg)
		_, err = auditStore.InsertAuditEntry(nil, "tester", storage.AuditAction_Upload, "revenue", map[string]interface{}{"row_count": 3})
		require.Nil(t, err)

		sc := SnapshotConfigFromConfig(cfg)
		sc.DbName = dbName
		sc.OutputFile = dumpFile
		svc, err := NewSnapshotService(sc, auditStore, l)
		require.Nil(t, err)
		require.Nil(t, svc.CreateSnapshot())

		assert.Greater(t, fileSize(dumpFile), int64(1024))

		entries, err := auditStore.ListAuditEntries(storage.AuditFilter{Action: storage.AuditAction_Snapshot})
		require.Nil(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, Actor, entries[0].Actor)
	})

	t.Run("Restore snapshot into an empty database", func(t *testing.T) {
		dbName, err := tests.GenerateTestDbName()
		require.Nil(t, err)
		pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
		pgConfig.DbName = dbName
		pgConfig.CreateDbIfNotExists = true
		pg, err := postgres.NewPostgres(pgConfig)
		require.Nil(t, err)
		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		require.Nil(t, err)
		t.Cleanup(func() {
			postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
		})

		sc := SnapshotConfigFromConfig(cfg)
		sc.DbName = dbName
		sc.InputFile = dumpFile
		svc, err := NewSnapshotService(sc, nil, l)
		require.Nil(t, err)
		require.Nil(t, svc.RestoreSnapshot())

		var uploads int64
		grm.Model(&storage.AuditEntry{}).Where("action = ?", storage.AuditAction_Upload).Count(&uploads)
		assert.Equal(t, int64(1), uploads)

		var migrated int64
		grm.Raw("select count(*) from migrations").Scan(&migrated)
		assert.Greater(t, migrated, int64(0))
	})
}
