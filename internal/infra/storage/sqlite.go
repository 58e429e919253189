package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"liquidity_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage mediates all access to the durable state: the singleton position,
// the open order set, and the deferred job queue. One database file per
// managed position. Concurrent writers must go through the same Storage;
// multi-process use of one file is unsupported.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the state database for the named position.
// stateDir empty resolves to the per-user config directory.
func NewStorage(stateDir, position string) (*Storage, error) {
	dbPath, err := resolveDBPath(stateDir, position)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&domain.Position{}, &domain.Order{}, &domain.Job{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// resolveDBPath places the state file under the user config dir unless an
// explicit state directory is configured.
func resolveDBPath(stateDir, position string) (string, error) {
	if filepath.Base(position) != position || position == "." {
		return "", fmt.Errorf("bad position name: %q", position)
	}

	if stateDir != "" {
		return filepath.Join(stateDir, position+".db"), nil
	}

	var configDir string
	var err error
	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LiquidityGo", "data", position+".db"), nil
}

// ======================================================================================
// Position Operations
// ======================================================================================

// InitPosition persists a freshly created position. Exactly one live row may
// exist; a second insert is rejected so a running instance can never be
// silently re-pointed at a different grid.
func (s *Storage) InitPosition(pos *domain.Position) error {
	var count int64
	if err := s.db.Model(&domain.Position{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrPositionExists
	}
	return s.db.Create(pos).Error
}

// GetPosition returns the singleton position row.
func (s *Storage) GetPosition() (*domain.Position, error) {
	var pos domain.Position
	err := s.db.First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoPosition
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ======================================================================================
// Order Operations
// ======================================================================================

// InsertOrder records a resting order accepted by the ledger. Re-inserting
// the same trade id is a no-op so restarts can replay order creation safely.
func (s *Storage) InsertOrder(order *domain.Order) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(order).Error
}

// GetOrders returns the full open order set.
func (s *Storage) GetOrders() ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.Order("trade_id").Find(&orders).Error
	return orders, err
}

// DeleteOrder removes a filled (or retired) order by trade id.
func (s *Storage) DeleteOrder(tradeID string) error {
	return s.db.Where("trade_id = ?", tradeID).Delete(&domain.Order{}).Error
}

// ======================================================================================
// Job Operations
// ======================================================================================

// AddJob persists a deferred job for eventual execution.
func (s *Storage) AddJob(job *domain.Job) error {
	return s.db.Create(job).Error
}

// GetJobs returns all pending jobs ordered by their not-before timestamp,
// unscheduled jobs first.
func (s *Storage) GetJobs() ([]domain.Job, error) {
	var jobs []domain.Job
	err := s.db.Order("not_before").Find(&jobs).Error
	return jobs, err
}

// RescheduleJob pushes a job's not-before timestamp out after a handler
// failure so the next dispatch waits out the backoff.
func (s *Storage) RescheduleJob(id uint, notBefore time.Time) error {
	return s.db.Model(&domain.Job{}).Where("id = ?", id).Update("not_before", notBefore).Error
}

// RemoveJob deletes a completed job.
func (s *Storage) RemoveJob(id uint) error {
	return s.db.Where("id = ?", id).Delete(&domain.Job{}).Error
}
