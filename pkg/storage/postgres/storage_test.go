package postgres

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/tests"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup() (
	string,
	*gorm.DB,
	*zap.Logger,
	*config.Config,
	error,
) {
	cfg := config.NewConfig()
	cfg.Debug = os.Getenv("AFKPI_DEBUG") == "true"
	cfg.DatabaseConfig = *tests.GetDbConfigFromEnv()

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	dbname, _, grm, err := postgres.GetTestPostgresDatabase(cfg.DatabaseConfig, l)
	if err != nil {
		return dbname, nil, nil, nil, err
	}
	return dbname, grm, l, cfg, nil
}

func Test_PostgresAuditStore(t *testing.T) {
	if !tests.PostgresTestsEnabled() {
		t.Skip("Skipping postgres test, AFKPI_DATABASE_HOST not set")
	}

	dbName, grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	store := NewPostgresAuditStore(grm, l, cfg)

	t.Run("Insert an entry", func(t *testing.T) {
		entry, err := store.InsertAuditEntry(nil, "jdoe", storage.AuditAction_Upload, "revenue", map[string]interface{}{
			"row_count": 12,
			"file":      "orders.csv",
		})
		require.Nil(t, err)
		assert.NotZero(t, entry.Id)
		assert.Equal(t, "jdoe", entry.Actor)

		details := map[string]interface{}{}
		require.Nil(t, json.Unmarshal(entry.Details, &details))
		assert.Equal(t, float64(12), details["row_count"])
	})

	t.Run("Entries need an actor", func(t *testing.T) {
		_, err := store.InsertAuditEntry(nil, "", storage.AuditAction_Upload, "revenue", nil)
		assert.Error(t, err)
	})

	t.Run("Insert inside a rolled back transaction leaves nothing", func(t *testing.T) {
		tx := grm.Begin()
		_, err := store.InsertAuditEntry(tx, "jdoe", storage.AuditAction_Upload, "labor", nil)
		require.Nil(t, err)
		tx.Rollback()

		entries, err := store.ListAuditEntries(storage.AuditFilter{Entity: "labor"})
		require.Nil(t, err)
		assert.Len(t, entries, 0)
	})

	t.Run("List filters and orders newest first", func(t *testing.T) {
		_, err := store.InsertAuditEntry(nil, "etl-erp", storage.AuditAction_ErpSync, "erp", map[string]interface{}{"failed": 0})
		require.Nil(t, err)
		_, err = store.InsertAuditEntry(nil, "jdoe", storage.AuditAction_Upload, "jobs", nil)
		require.Nil(t, err)

		all, err := store.ListAuditEntries(storage.AuditFilter{})
		require.Nil(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "jobs", all[0].Entity)

		byActor, err := store.ListAuditEntries(storage.AuditFilter{Actor: "jdoe"})
		require.Nil(t, err)
		assert.Len(t, byActor, 2)

		byAction, err := store.ListAuditEntries(storage.AuditFilter{Action: storage.AuditAction_ErpSync})
		require.Nil(t, err)
		require.Len(t, byAction, 1)
		assert.Equal(t, "etl-erp", byAction[0].Actor)

		limited, err := store.ListAuditEntries(storage.AuditFilter{Limit: 1})
		require.Nil(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("The log is append-only", func(t *testing.T) {
		res := grm.Exec("update audit_log set actor = 'someone-else'")
		assert.ErrorContains(t, res.Error, "append-only")

		res = grm.Exec("delete from audit_log")
		assert.ErrorContains(t, res.Error, "append-only")

		var count int64
		grm.Model(&storage.AuditEntry{}).Count(&count)
		assert.Equal(t, int64(3), count)
	})

	t.Cleanup(func() {
		postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
	})
}
