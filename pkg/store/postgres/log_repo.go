package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

var _ store.LogStore = (*LogRepository)(nil)

func (r *LogRepository) CreateBatch(ctx context.Context, logs []*model.LifecycleLogEntry) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

func (r *LogRepository) ListByAction(ctx context.Context, actionID uuid.UUID, limit int) ([]model.LifecycleLogEntry, error) {
	var logs []model.LifecycleLogEntry
	query := r.db.WithContext(ctx).
		Where("action_id = ?", actionID).
		Order("timestamp ASC, id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&logs).Error
	return logs, err
}

func (r *LogRepository) Query(ctx context.Context, query store.LogQuery) ([]model.LifecycleLogEntry, error) {
	if query.OrganizationID == uuid.Nil {
		return nil, gorm.ErrInvalidValue
	}

	var logs []model.LifecycleLogEntry
	dbQuery := r.db.WithContext(ctx).
		Where("organization_id = ?", query.OrganizationID).
		Order("timestamp ASC, id ASC")

	if query.ActionID != nil {
		dbQuery = dbQuery.Where("action_id = ?", *query.ActionID)
	}

	if query.StepName != "" {
		dbQuery = dbQuery.Where("step_name = ?", query.StepName)
	}

	if query.Outcome != "" {
		dbQuery = dbQuery.Where("outcome = ?", query.Outcome)
	}

	if query.Since != nil {
		dbQuery = dbQuery.Where("timestamp >= ?", *query.Since)
	}

	if query.Until != nil {
		dbQuery = dbQuery.Where("timestamp <= ?", *query.Until)
	}

	if query.Limit > 0 {
		dbQuery = dbQuery.Limit(query.Limit)
	}

	err := dbQuery.Find(&logs).Error
	return logs, err
}

func (r *LogRepository) DeleteOldLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&model.LifecycleLogEntry{}).Error
}

// Close is a no-op; the connection pool belongs to Store.
func (r *LogRepository) Close() error {
	return nil
}
