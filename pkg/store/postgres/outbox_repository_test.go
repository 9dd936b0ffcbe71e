package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios/lifecycle/pkg/model"
)

func TestOutboxRepository_ListEventsByAction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	actionID := uuid.New()
	created := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"event_id", "action_id", "event_type", "payload", "status", "last_error", "created_at"}).
		AddRow(uuid.New().String(), actionID.String(), model.EventActionScheduled, []byte(`{"status":"pending"}`), model.OutboxStatusPublished, "", created).
		AddRow(uuid.New().String(), actionID.String(), model.EventActionCancelled, []byte(`{"status":"cancelled"}`), model.OutboxStatusFailed, "broker unavailable", created.Add(time.Minute))
	mock.ExpectQuery(`SELECT \* FROM "action_events" WHERE action_id = \$1 ORDER BY created_at ASC, event_id ASC LIMIT 500`).
		WithArgs(actionID.String()).
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), actionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventActionScheduled, events[0].EventType)
	assert.Equal(t, "cancelled", events[1].Payload["status"])
	assert.Equal(t, "broker unavailable", events[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkFailedOnlyTouchesPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	eventID := uuid.New()

	mock.ExpectExec(`UPDATE "action_events" SET "last_error"=\$1,"status"=\$2 WHERE event_id = \$3 AND status = \$4`).
		WithArgs("broker unavailable", model.OutboxStatusFailed, eventID.String(), model.OutboxStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), eventID, "broker unavailable"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
