// Package ledger records pipeline runs and their per-stage outcomes in a
// sqlite or mysql database. The ledger is a report: stage skip decisions are
// made from output files, never from ledger rows.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs
var ErrRunNotFound = errors.NewStd("run not found")

// Ledger list limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// Store persists runs and stage outcomes
type Store interface {
	StartRun(ctx context.Context, target, batchDir string) (*Run, error)
	RecordStage(ctx context.Context, runID string, outcome *StageOutcome) error
	FinishRun(ctx context.Context, runID, status string, observations, records int, message string) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	Close() error
}

// Config selects and locates the ledger database
type Config struct {
	Enabled bool
	Driver  string // sqlite or mysql
	Path    string // sqlite file
	MySQL   conf.MySQLSettings
	Debug   bool
}

// ConfigFromSettings builds a Config, resolving a relative sqlite path under the data directory
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		Enabled: settings.Ledger.Enabled,
		Driver:  strings.ToLower(settings.Ledger.Driver),
		Path:    conf.ResolveUnder(conf.ExpandHome(settings.Main.DataDir), settings.Ledger.Path),
		MySQL:   settings.Ledger.MySQL,
		Debug:   settings.Debug,
	}
}

// Open connects to the configured database and migrates the schema.
// A disabled ledger returns a store that discards everything.
func Open(cfg Config) (Store, error) {
	if !cfg.Enabled {
		GetLogger().Debug("Run ledger disabled")
		return NoopStore{}, nil
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.New(err).
				Component("ledger").
				Category(errors.CategoryFileIO).
				FileContext(cfg.Path).
				Build()
		}
		dialector = sqlite.Open(cfg.Path)
	case "mysql":
		dialector = mysql.Open(mysqlDSN(&cfg.MySQL))
	default:
		return nil, errors.Newf("unsupported ledger driver %q", cfg.Driver).
			Component("ledger").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(cfg.Debug)})
	if err != nil {
		return nil, dbError(err, "open", cfg.Driver)
	}

	if cfg.Driver != "mysql" {
		// sqlite allows one writer at a time
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "open", cfg.Driver)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Run{}, &StageOutcome{}); err != nil {
		return nil, dbError(err, "auto_migrate", cfg.Driver)
	}

	GetLogger().Info("Run ledger opened",
		logger.String("driver", dialector.Name()),
		logger.String("path", cfg.Path))
	return &GormStore{db: db}, nil
}

func mysqlDSN(m *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// GormStore is the gorm backed Store
type GormStore struct {
	db *gorm.DB
}

// StartRun inserts a running Run with a fresh UUID
func (s *GormStore) StartRun(ctx context.Context, target, batchDir string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Target:    target,
		BatchDir:  batchDir,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, dbError(err, "start_run", "")
	}
	return run, nil
}

// RecordStage appends one stage outcome to a run
func (s *GormStore) RecordStage(ctx context.Context, runID string, outcome *StageOutcome) error {
	outcome.RunID = runID
	if err := s.db.WithContext(ctx).Create(outcome).Error; err != nil {
		return dbError(err, "record_stage", "")
	}
	return nil
}

// FinishRun stores the final status and counts of a run
func (s *GormStore) FinishRun(ctx context.Context, runID, status string, observations, records int, message string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", runID).Updates(map[string]any{
		"finished_at":  &now,
		"status":       status,
		"observations": observations,
		"records":      records,
		"message":      message,
	})
	if result.Error != nil {
		return dbError(result.Error, "finish_run", "")
	}
	if result.RowsAffected == 0 {
		return notFound(runID)
	}
	return nil
}

// ListRuns returns the most recent runs first, without stage outcomes
func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	var runs []Run
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, dbError(err, "list_runs", "")
	}
	return runs, nil
}

// GetRun returns one run with its stage outcomes in insertion order
func (s *GormStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, dbError(err, "get_run", "")
	}
	return &run, nil
}

// Close releases the database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	return sqlDB.Close()
}

func dbError(err error, operation, driver string) error {
	b := errors.New(err).
		Component("ledger").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	if driver != "" {
		b = b.Context("driver", driver)
	}
	return b.Build()
}

func notFound(id string) error {
	return errors.New(ErrRunNotFound).
		Component("ledger").
		Category(errors.CategoryNotFound).
		Context("run_id", id).
		Build()
}

// NoopStore discards writes and reports no runs
type NoopStore struct{}

func (NoopStore) StartRun(_ context.Context, target, batchDir string) (*Run, error) {
	return &Run{ID: uuid.NewString(), Target: target, BatchDir: batchDir, StartedAt: time.Now().UTC(), Status: RunRunning}, nil
}

func (NoopStore) RecordStage(context.Context, string, *StageOutcome) error { return nil }

func (NoopStore) FinishRun(context.Context, string, string, int, int, string) error { return nil }

func (NoopStore) ListRuns(context.Context, int) ([]Run, error) { return nil, nil }

func (NoopStore) GetRun(_ context.Context, id string) (*Run, error) { return nil, notFound(id) }

func (NoopStore) Close() error { return nil }
