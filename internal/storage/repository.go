package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hupe1980/agentflow/flow"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// ErrRunNotFound is returned when no run matches an id.
var ErrRunNotFound = errors.New("run not found")

var _ flow.Recorder = (*Storage)(nil)

// RunQuery filters ListRuns.
type RunQuery struct {
	// Flow restricts results to one flow type.
	Flow string
	// Since returns runs started at or after the given time.
	Since *time.Time
	// Limit bounds the number of runs; <=0 uses the default.
	Limit int
}

// Record implements flow.Recorder. A run recorded twice replaces its steps.
func (s *Storage) Record(ctx context.Context, r *flow.Report) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if r == nil {
		return errors.New("report is nil")
	}

	rec, err := newRunRecord(r)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", rec.RunID).Delete(&StepRecord{}).Error; err != nil {
			return fmt.Errorf("delete steps: %w", err)
		}
		steps := rec.Steps
		rec.Steps = nil
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if len(steps) > 0 {
			if err := tx.CreateInBatches(steps, 100).Error; err != nil {
				return fmt.Errorf("insert steps: %w", err)
			}
		}
		rec.Steps = steps
		return nil
	})
}

// ListRuns returns runs newest first, without their steps.
func (s *Storage) ListRuns(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	db := s.db.WithContext(ctx).Model(&RunRecord{})
	if q.Flow != "" {
		db = db.Where("flow = ?", strings.ToLower(q.Flow))
	}
	if q.Since != nil {
		db = db.Where("started_at >= ?", q.Since.UTC())
	}

	var out []RunRecord
	if err := db.Order("started_at desc").Limit(normalizeLimit(q.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun returns the run with its steps in execution order. An unambiguous
// id prefix is accepted.
func (s *Storage) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	var matches []RunRecord
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("seq asc") }).
		Where("run_id = ? OR run_id LIKE ?", id, id+"%").
		Limit(2).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return &matches[0], nil
	default:
		for i := range matches {
			if matches[i].RunID == id {
				return &matches[i], nil
			}
		}
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// DeleteRun removes a run and its steps.
func (s *Storage) DeleteRun(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&StepRecord{}).Error; err != nil {
			return fmt.Errorf("delete steps: %w", err)
		}
		res := tx.Where("run_id = ?", id).Delete(&RunRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
