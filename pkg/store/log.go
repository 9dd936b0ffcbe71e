package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
)

// LogStore defines the interface for lifecycle log backends (PostgreSQL, ClickHouse, memory)
type LogStore interface {
	// CreateBatch appends entries; entries are never updated afterwards
	CreateBatch(ctx context.Context, entries []*model.LifecycleLogEntry) error

	// ListByAction returns the entries of one action in timestamp order
	ListByAction(ctx context.Context, actionID uuid.UUID, limit int) ([]model.LifecycleLogEntry, error)

	// Query searches the entries of one organization
	Query(ctx context.Context, query LogQuery) ([]model.LifecycleLogEntry, error)

	// DeleteOldLogs deletes entries older than the retention period (if backend requires it)
	DeleteOldLogs(ctx context.Context, retentionDays int) error

	// Close closes the connection to the storage backend
	Close() error
}

// LogQuery narrows an organization-wide log search.
type LogQuery struct {
	OrganizationID uuid.UUID
	ActionID       *uuid.UUID
	StepName       string
	Outcome        model.StepOutcome
	Since          *time.Time
	Until          *time.Time
	Limit          int
}
