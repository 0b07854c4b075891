package migrations

import (
	"database/sql"
	"fmt"
	"time"

	_202510060900_weeklyDimensions "github.com/zsmith-jtec/AFKPI/pkg/postgres/migrations/202510060900_weeklyDimensions"
	_202510060915_weeklyFacts "github.com/zsmith-jtec/AFKPI/pkg/postgres/migrations/202510060915_weeklyFacts"
	_202510060930_auditLog "github.com/zsmith-jtec/AFKPI/pkg/postgres/migrations/202510060930_auditLog"
	_202510081120_reportIndexes "github.com/zsmith-jtec/AFKPI/pkg/postgres/migrations/202510081120_reportIndexes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Migration interface {
	Up(db *sql.DB, grm *gorm.DB) error
	GetName() string
}

type Migrator struct {
	Db     *sql.DB
	GDb    *gorm.DB
	Logger *zap.Logger
}

func NewMigrator(db *sql.DB, gDb *gorm.DB, l *zap.Logger) *Migrator {
	return &Migrator{
		Db:     db,
		GDb:    gDb,
		Logger: l,
	}
}

func AllMigrations() []Migration {
	return []Migration{
		&_202510060900_weeklyDimensions.Migration{},
		&_202510060915_weeklyFacts.Migration{},
		&_202510060930_auditLog.Migration{},
		&_202510081120_reportIndexes.Migration{},
	}
}

func (m *Migrator) MigrateAll() error {
	if err := m.GDb.AutoMigrate(&Migrations{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range AllMigrations() {
		if err := m.Migrate(migration); err != nil {
			return fmt.Errorf("migration '%s' failed: %w", migration.GetName(), err)
		}
	}
	return nil
}

func (m *Migrator) Migrate(migration Migration) error {
	name := migration.GetName()

	var migrationRecord Migrations
	result := m.GDb.Where("name = ?", name).Limit(1).Find(&migrationRecord)

	if result.Error != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to find migration '%s'", name), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected > 0 {
		m.Logger.Sugar().Debugf("Migration %s already run", name)
		return nil
	}

	m.Logger.Sugar().Infof("Running migration '%s'", name)
	if err := migration.Up(m.Db, m.GDb); err != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to run migration '%s'", name), zap.Error(err))
		return err
	}

	migrationRecord = Migrations{
		Name: name,
	}
	if res := m.GDb.Create(&migrationRecord); res.Error != nil {
		m.Logger.Sugar().Errorw(fmt.Sprintf("Failed to record migration '%s'", name), zap.Error(res.Error))
		return res.Error
	}
	return nil
}

type Migrations struct {
	Name      string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"default:current_timestamp;type:timestamp with time zone"`
	UpdatedAt time.Time `gorm:"default:null;type:timestamp with time zone"`
}
