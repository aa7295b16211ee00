package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/formbridge/backend/internal/domain/submission"
	"github.com/formbridge/backend/internal/infrastructure/config"
)

// APILog is one request/response log entry
type APILog struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"size:64;index"`
	Method    string    `gorm:"size:8"`
	Path      string    `gorm:"size:255"`
	Status    int       `gorm:""`
	LatencyMs int64     `gorm:""`
	ClientIP  string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index"`
}

// SubmissionLog is one submission outcome entry
type SubmissionLog struct {
	ID          uint      `gorm:"primaryKey"`
	ContextID   string    `gorm:"size:128;index"`
	FormID      string    `gorm:"size:64;index"`
	SessionID   string    `gorm:"size:64"`
	TrackingID  string    `gorm:"size:64"`
	Success     bool      `gorm:""`
	IsDuplicate bool      `gorm:""`
	Warning     string    `gorm:"type:text"`
	Error       string    `gorm:"type:text"`
	DurationMs  int64     `gorm:""`
	Detail      string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
}

// Store is the append-only audit store. Entries are retained for the
// configured window and removed by an hourly sweep; nothing ever updates a
// written row.
type Store struct {
	db        *gorm.DB
	retention time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStore opens the audit database and starts the retention sweep
func NewStore(cfg config.AuditConfig, gormLog gormlogger.Interface, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: opening store: %w", err)
	}
	if err := db.AutoMigrate(&APILog{}, &SubmissionLog{}); err != nil {
		return nil, fmt.Errorf("audit: migrating store: %w", err)
	}

	store := &Store{
		db:        db,
		retention: cfg.Retention,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		store.wg.Add(1)
		go store.sweepLoop(cfg.SweepInterval)
	}
	return store, nil
}

// RecordRequest appends one request/response log entry
func (s *Store) RecordRequest(ctx context.Context, entry APILog) error {
	return s.db.WithContext(ctx).Create(&entry).Error
}

// RecordOutcome appends one submission outcome entry. Failures are logged
// and swallowed; audit recording must never fail the submission response.
func (s *Store) RecordOutcome(ctx context.Context, outcome submission.Outcome) {
	detail, err := json.Marshal(outcome)
	if err != nil {
		detail = nil
	}
	entry := SubmissionLog{
		ContextID:   outcome.ContextID,
		FormID:      outcome.FormID,
		SessionID:   outcome.SessionID,
		TrackingID:  outcome.TrackingID,
		Success:     outcome.Success,
		IsDuplicate: outcome.IsDuplicate,
		Warning:     outcome.Warning,
		Error:       outcome.Error,
		DurationMs:  outcome.DurationMs,
		Detail:      string(detail),
		CreatedAt:   outcome.SubmittedAt,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil && s.logger != nil {
		s.logger.Warn("audit outcome write failed",
			zap.String("context_id", outcome.ContextID), zap.Error(err))
	}
}

// Sweep removes entries older than the retention window
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	var removed int64

	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&APILog{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed += res.RowsAffected

	res = s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&SubmissionLog{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed += res.RowsAffected

	return removed, nil
}

// Close stops the sweep goroutine and closes the database
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			removed, err := s.Sweep(context.Background())
			if err != nil && s.logger != nil {
				s.logger.Warn("audit sweep failed", zap.Error(err))
			} else if removed > 0 && s.logger != nil {
				s.logger.Debug("swept expired audit entries", zap.Int64("removed", removed))
			}
		}
	}
}

// Ensure Store implements the submission recorder port
var _ submission.Recorder = (*Store)(nil)
