package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/model"
)

type fakeRepo struct {
	mu        sync.Mutex
	pending   []model.ActionEvent
	published []uuid.UUID
	failed    []uuid.UUID
	reasons   []string
	cutoffs   []time.Time
}

func (f *fakeRepo) ListPending(ctx context.Context, limit int) ([]model.ActionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return append([]model.ActionEvent(nil), f.pending[:limit]...), nil
	}
	return append([]model.ActionEvent(nil), f.pending...), nil
}

func (f *fakeRepo) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, eventID)
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, eventID uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, eventID)
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeRepo) DeletePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 0, nil
}

type fakePublisher struct {
	failEvents bool
	events     [][]byte
	keys       []string
	dlq        [][]byte
}

func (p *fakePublisher) PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	if p.failEvents {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, string(key))
	p.events = append(p.events, value)
	return nil
}

func (p *fakePublisher) PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	p.dlq = append(p.dlq, value)
	return nil
}

func pendingEvent(eventType string) model.ActionEvent {
	action := &model.ScheduledAction{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		ActionType:     model.ActionOffboard,
		Status:         model.ActionCompleted,
		ScheduledFor:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	return *model.NewActionEvent(eventType, action, time.Now())
}

func TestRelayPublishesPendingEvents(t *testing.T) {
	first := pendingEvent(model.EventActionScheduled)
	second := pendingEvent(model.EventActionResolved)
	repo := &fakeRepo{pending: []model.ActionEvent{first, second}}
	pub := &fakePublisher{}

	relay := NewRelay(repo, pub, zap.NewNop(), Options{BatchSize: 10})
	published := relay.ProcessPending(context.Background())

	assert.Equal(t, 2, published)
	assert.Equal(t, []uuid.UUID{first.EventID, second.EventID}, repo.published)
	assert.Empty(t, repo.failed)
	assert.Equal(t, first.ActionID.String(), pub.keys[0])

	var msg Message
	require.NoError(t, json.Unmarshal(pub.events[1], &msg))
	assert.Equal(t, model.EventActionResolved, msg.EventType)
	assert.Equal(t, "completed", msg.Payload["status"])
}

func TestRelaySendsToDLQWhenPublishFails(t *testing.T) {
	event := pendingEvent(model.EventActionCancelled)
	repo := &fakeRepo{pending: []model.ActionEvent{event}}
	pub := &fakePublisher{failEvents: true}

	relay := NewRelay(repo, pub, zap.NewNop(), Options{})
	published := relay.ProcessPending(context.Background())

	assert.Equal(t, 0, published)
	assert.Empty(t, repo.published)
	assert.Equal(t, []uuid.UUID{event.EventID}, repo.failed)
	assert.Equal(t, []string{"broker unavailable"}, repo.reasons)
	require.Len(t, pub.dlq, 1)

	var dlq DLQMessage
	require.NoError(t, json.Unmarshal(pub.dlq[0], &dlq))
	assert.Equal(t, "broker unavailable", dlq.Error)
	assert.Equal(t, event.EventID.String(), dlq.Event.EventID)
}

func TestRelayPrunesAtMostHourly(t *testing.T) {
	repo := &fakeRepo{}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	relay := NewRelay(repo, &fakePublisher{}, zap.NewNop(), Options{PublishedRetention: 24 * time.Hour})
	relay.now = func() time.Time { return now }

	relay.prune(context.Background())
	relay.prune(context.Background())
	require.Len(t, repo.cutoffs, 1)
	assert.True(t, repo.cutoffs[0].Equal(now.Add(-24*time.Hour)))

	now = now.Add(2 * time.Hour)
	relay.prune(context.Background())
	assert.Len(t, repo.cutoffs, 2)
}
