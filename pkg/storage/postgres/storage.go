package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultAuditLimit = 100

type PostgresAuditStore struct {
	Db           *gorm.DB
	Logger       *zap.Logger
	GlobalConfig *config.Config
}

func NewPostgresAuditStore(db *gorm.DB, l *zap.Logger, cfg *config.Config) *PostgresAuditStore {
	return &PostgresAuditStore{
		Db:           db,
		Logger:       l,
		GlobalConfig: cfg,
	}
}

func (s *PostgresAuditStore) InsertAuditEntry(
	tx *gorm.DB,
	actor string,
	action storage.AuditAction,
	entity string,
	details map[string]interface{},
) (*storage.AuditEntry, error) {
	if tx == nil {
		tx = s.Db
	}
	if actor == "" {
		return nil, fmt.Errorf("audit entries need an actor")
	}

	detailsJson, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}

	entry := &storage.AuditEntry{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		Details:   datatypes.JSON(detailsJson),
	}
	res := tx.Model(&storage.AuditEntry{}).Clauses(clause.Returning{}).Create(entry)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert audit entry for '%s': %w", entity, res.Error)
	}
	return entry, nil
}

// ListAuditEntries returns the newest entries first.
func (s *PostgresAuditStore) ListAuditEntries(filter storage.AuditFilter) ([]*storage.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	query := s.Db.Model(&storage.AuditEntry{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Entity != "" {
		query = query.Where("entity = ?", filter.Entity)
	}

	entries := make([]*storage.AuditEntry, 0)
	res := query.Order("timestamp desc, id desc").Limit(limit).Find(&entries)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", res.Error)
	}
	return entries, nil
}
