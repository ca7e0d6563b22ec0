package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultListLimit is used when a ListFilter has no limit.
const DefaultListLimit = 100

// Store provides persistence for result history.
type Store interface {
	report.CycleSink

	Start(ctx context.Context) error
	Stop() error

	InsertResult(ctx context.Context, r *Result) error
	ListResults(ctx context.Context, filter ListFilter) ([]Result, error)
	LatestResults(ctx context.Context) ([]Result, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.StoreConfig
	db  *gorm.DB

	mu    sync.Mutex
	runID string
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.StoreConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening result database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Result{}); err != nil {
		return fmt.Errorf("running result migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Result database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// StartCycle tags subsequent results with the cycle's run ID.
func (s *store) StartCycle(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = runID

	return nil
}

// EndCycle clears the current run ID.
func (s *store) EndCycle(_ context.Context, _ *report.CycleInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = ""

	return nil
}

// Write stores an executed result.
func (s *store) Write(ctx context.Context, result *executor.Result) error {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	row := &Result{
		RunID:          runID,
		Timestamp:      result.Record.Timestamp,
		Test:           result.Record.Test,
		Backend:        result.Record.Backend,
		Result:         string(result.Record.Result),
		RuntimeSeconds: float64(result.Record.Runtime),
		StatusCode:     result.StatusCode,
	}

	if result.Err != nil {
		row.Error = result.Err.Error()
	}

	return s.InsertResult(ctx, row)
}

// InsertResult stores a result row.
func (s *store) InsertResult(ctx context.Context, r *Result) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}

	return nil
}

// ListResults returns results matching the filter, newest first.
func (s *store) ListResults(ctx context.Context, filter ListFilter) ([]Result, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := s.db.WithContext(ctx).Model(&Result{})

	if filter.Test != "" {
		q = q.Where("test = ?", filter.Test)
	}

	if filter.Backend != "" {
		q = q.Where("backend = ?", filter.Backend)
	}

	if filter.Result != "" {
		q = q.Where("result = ?", filter.Result)
	}

	var results []Result
	if err := q.Order("id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return results, nil
}

// LatestResults returns the newest result for every (test, backend) pair,
// ordered by test then backend.
func (s *store) LatestResults(ctx context.Context) ([]Result, error) {
	latest := s.db.Model(&Result{}).
		Select("MAX(id)").
		Group("test, backend")

	var results []Result
	if err := s.db.WithContext(ctx).
		Where("id IN (?)", latest).
		Order("test ASC, backend ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing latest results: %w", err)
	}

	return results, nil
}
