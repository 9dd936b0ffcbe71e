package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

type LogStore struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []model.LifecycleLogEntry
}

func NewLogStore() *LogStore {
	return &LogStore{}
}

func (s *LogStore) CreateBatch(_ context.Context, entries []*model.LifecycleLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		s.nextID++
		entry.ID = s.nextID
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}
		s.entries = append(s.entries, *entry)
	}
	return nil
}

func (s *LogStore) ListByAction(_ context.Context, actionID uuid.UUID, limit int) ([]model.LifecycleLogEntry, error) {
	return s.Query(context.Background(), store.LogQuery{ActionID: &actionID, Limit: limit})
}

// Query ignores OrganizationID when it is the nil UUID.
func (s *LogStore) Query(_ context.Context, query store.LogQuery) ([]model.LifecycleLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LifecycleLogEntry, 0)
	for _, entry := range s.entries {
		if query.OrganizationID != uuid.Nil && entry.OrganizationID != query.OrganizationID {
			continue
		}
		if query.ActionID != nil && entry.ActionID != *query.ActionID {
			continue
		}
		if query.StepName != "" && entry.StepName != query.StepName {
			continue
		}
		if query.Outcome != "" && entry.Outcome != query.Outcome {
			continue
		}
		if query.Since != nil && entry.Timestamp.Before(*query.Since) {
			continue
		}
		if query.Until != nil && entry.Timestamp.After(*query.Until) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *LogStore) DeleteOldLogs(_ context.Context, retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if !entry.Timestamp.Before(cutoff) {
			kept = append(kept, entry)
		}
	}
	s.entries = kept
	return nil
}

func (s *LogStore) Close() error {
	return nil
}
