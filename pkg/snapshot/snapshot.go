// Package snapshot backs up and restores the KPI database with pg_dump and
// pg_restore.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pgcommands "github.com/habx/pg-commands"
	"github.com/pkg/errors"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"go.uber.org/zap"
)

const Actor = "etl-snapshot"

type SnapshotConfig struct {
	OutputFile string
	InputFile  string
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	// Progress draws a byte counter on stderr while the dump file grows.
	Progress bool
}

// SnapshotConfigFromConfig combines the database connection with the
// snapshot file settings.
func SnapshotConfigFromConfig(cfg *config.Config) *SnapshotConfig {
	return &SnapshotConfig{
		OutputFile: cfg.SnapshotConfig.OutputFile,
		InputFile:  cfg.SnapshotConfig.InputFile,
		Host:       cfg.DatabaseConfig.Host,
		Port:       cfg.DatabaseConfig.Port,
		User:       cfg.DatabaseConfig.User,
		Password:   cfg.DatabaseConfig.Password,
		DbName:     cfg.DatabaseConfig.DbName,
		SchemaName: cfg.DatabaseConfig.SchemaName,
	}
}

type SnapshotService struct {
	cfg        *SnapshotConfig
	auditStore storage.AuditStore
	l          *zap.Logger
}

// NewSnapshotService resolves the configured file paths. auditStore may be
// nil, in which case nothing is recorded in the audit log.
func NewSnapshotService(cfg *SnapshotConfig, auditStore storage.AuditStore, l *zap.Logger) (*SnapshotService, error) {
	var err error

	cfg.InputFile, err = resolveFilePath(cfg.InputFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve input file path")
	}
	cfg.OutputFile, err = resolveFilePath(cfg.OutputFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve output file path")
	}

	l.Sugar().Debugw("Resolved snapshot file paths",
		zap.String("inputFile", cfg.InputFile),
		zap.String("outputFile", cfg.OutputFile),
	)

	return &SnapshotService{
		cfg:        cfg,
		auditStore: auditStore,
		l:          l,
	}, nil
}

// resolveFilePath expands a leading ~ and makes the path absolute.
func resolveFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

func (s *SnapshotService) CreateSnapshot() error {
	if err := s.validateCreateSnapshotConfig(); err != nil {
		return err
	}

	dump, err := s.setupSnapshotDump()
	if err != nil {
		return err
	}

	var stop func()
	if s.cfg.Progress {
		stop = watchFileGrowth(s.cfg.OutputFile, fmt.Sprintf("dumping %s", s.cfg.DbName))
	}
	dumpExec := dump.Exec(pgcommands.ExecOptions{StreamPrint: false})
	if stop != nil {
		stop()
	}
	if dumpExec.Error != nil {
		s.l.Sugar().Errorw("Failed to create database snapshot",
			zap.Error(dumpExec.Error.Err),
			zap.String("output", dumpExec.Output),
		)
		return errors.Wrap(dumpExec.Error.Err, "pg_dump failed")
	}

	size := fileSize(s.cfg.OutputFile)
	s.l.Sugar().Infow("Created database snapshot",
		zap.String("file", s.cfg.OutputFile),
		zap.Int64("bytes", size),
	)
	s.audit("create", s.cfg.OutputFile, size)
	return nil
}

func (s *SnapshotService) RestoreSnapshot() error {
	if err := s.validateRestoreConfig(); err != nil {
		return err
	}

	restore, err := s.setupRestore()
	if err != nil {
		return err
	}

	restoreExec := restore.Exec(s.cfg.InputFile, pgcommands.ExecOptions{StreamPrint: false})
	if restoreExec.Error != nil {
		s.l.Sugar().Errorw("Failed to restore from snapshot",
			zap.Error(restoreExec.Error.Err),
			zap.String("output", restoreExec.Output),
		)
		return errors.Wrap(restoreExec.Error.Err, "pg_restore failed")
	}

	s.l.Sugar().Infow("Restored database snapshot", zap.String("file", s.cfg.InputFile))
	s.audit("restore", s.cfg.InputFile, fileSize(s.cfg.InputFile))
	return nil
}

// audit failures are logged only; the snapshot itself already succeeded.
func (s *SnapshotService) audit(operation string, file string, size int64) {
	if s.auditStore == nil {
		return
	}
	_, err := s.auditStore.InsertAuditEntry(nil, Actor, storage.AuditAction_Snapshot, s.cfg.DbName, map[string]interface{}{
		"operation": operation,
		"file":      filepath.Base(file),
		"bytes":     size,
	})
	if err != nil {
		s.l.Sugar().Warnw("Failed to record snapshot in audit log", zap.Error(err))
	}
}

func (s *SnapshotService) validateCreateSnapshotConfig() error {
	if s.cfg.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if s.cfg.DbName == "" {
		return fmt.Errorf("database name is required")
	}
	if s.cfg.OutputFile == "" {
		return fmt.Errorf("output path i.e. `output-file` must be specified")
	}
	if dir := filepath.Dir(s.cfg.OutputFile); !isDir(dir) {
		return fmt.Errorf("output directory does not exist: %s", dir)
	}
	return nil
}

func (s *SnapshotService) setupSnapshotDump() (*pgcommands.Dump, error) {
	dump, err := pgcommands.NewDump(&pgcommands.Postgres{
		Host:     s.cfg.Host,
		Port:     s.cfg.Port,
		DB:       s.cfg.DbName,
		Username: s.cfg.User,
		Password: s.cfg.Password,
	})
	if err != nil {
		s.l.Sugar().Errorw("Failed to initialize pg-commands Dump", zap.Error(err))
		return nil, err
	}

	if s.cfg.SchemaName != "" {
		dump.Options = append(dump.Options, fmt.Sprintf("--schema=%s", s.cfg.SchemaName))
	}
	dump.SetFileName(s.cfg.OutputFile)

	return dump, nil
}

func (s *SnapshotService) validateRestoreConfig() error {
	if s.cfg.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if s.cfg.InputFile == "" {
		return fmt.Errorf("restore snapshot file path i.e. `input-file` must be specified")
	}
	info, err := os.Stat(s.cfg.InputFile)
	if err != nil || info.IsDir() {
		return fmt.Errorf("snapshot file does not exist: %s", s.cfg.InputFile)
	}
	return nil
}

func (s *SnapshotService) setupRestore() (*pgcommands.Restore, error) {
	restore, err := pgcommands.NewRestore(&pgcommands.Postgres{
		Host: s.cfg.Host,
		Port: s.cfg.Port,
		// the target goes in --dbname so pg_restore does not fall back to the role name
		DB:       "",
		Username: s.cfg.User,
		Password: s.cfg.Password,
	})
	if err != nil {
		s.l.Sugar().Errorw("Failed to initialize restore", zap.Error(err))
		return nil, err
	}

	restore.Options = append(restore.Options, "--if-exists")
	restore.Options = append(restore.Options, fmt.Sprintf("--dbname=%s", s.cfg.DbName))

	if s.cfg.SchemaName != "" {
		restore.SetSchemas([]string{s.cfg.SchemaName})
	}
	return restore, nil
}
