package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

const selectColumns = "action_id, organization_id, action_type, step_name, outcome, detail, error, attempt, metadata, timestamp"

type LogStore struct {
	conn          driver.Conn
	retentionDays int
	logger        *zap.Logger
}

var _ store.LogStore = (*LogStore)(nil)

func NewLogStore(cfg config.ClickHouseConfig, retentionDays int, logger *zap.Logger) (*LogStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return NewLogStoreWithConn(conn, retentionDays, logger), nil
}

func NewLogStoreWithConn(conn driver.Conn, retentionDays int, logger *zap.Logger) *LogStore {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &LogStore{conn: conn, retentionDays: retentionDays, logger: logger}
}

func (s *LogStore) CreateBatch(ctx context.Context, logs []*model.LifecycleLogEntry) error {
	if len(logs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO lifecycle_logs")
	if err != nil {
		return err
	}

	for _, entry := range logs {
		metadata, err := encodeMetadata(entry.Metadata)
		if err != nil {
			return err
		}
		err = batch.Append(
			entry.ActionID,
			entry.OrganizationID,
			string(entry.ActionType),
			entry.StepName,
			string(entry.Outcome),
			entry.Detail,
			entry.Error,
			int32(entry.Attempt),
			metadata,
			entry.Timestamp.UTC(),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (s *LogStore) ListByAction(ctx context.Context, actionID uuid.UUID, limit int) ([]model.LifecycleLogEntry, error) {
	query := "SELECT " + selectColumns + " FROM lifecycle_logs WHERE action_id = ? ORDER BY timestamp ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.scan(ctx, query, actionID)
}

func (s *LogStore) Query(ctx context.Context, query store.LogQuery) ([]model.LifecycleLogEntry, error) {
	if query.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("organization id is required")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM lifecycle_logs WHERE organization_id = ?")
	args := []interface{}{query.OrganizationID}

	if query.ActionID != nil {
		sb.WriteString(" AND action_id = ?")
		args = append(args, *query.ActionID)
	}

	if query.StepName != "" {
		sb.WriteString(" AND step_name = ?")
		args = append(args, query.StepName)
	}

	if query.Outcome != "" {
		sb.WriteString(" AND outcome = ?")
		args = append(args, string(query.Outcome))
	}

	if query.Since != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, query.Since.UTC())
	}

	if query.Until != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, query.Until.UTC())
	}

	sb.WriteString(" ORDER BY timestamp ASC")

	if query.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", query.Limit))
	}

	return s.scan(ctx, sb.String(), args...)
}

func (s *LogStore) scan(ctx context.Context, query string, args ...interface{}) ([]model.LifecycleLogEntry, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.LifecycleLogEntry
	for rows.Next() {
		var (
			entry      model.LifecycleLogEntry
			actionType string
			outcome    string
			attempt    int32
			metadata   string
		)
		if err := rows.Scan(
			&entry.ActionID,
			&entry.OrganizationID,
			&actionType,
			&entry.StepName,
			&outcome,
			&entry.Detail,
			&entry.Error,
			&attempt,
			&metadata,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		entry.ActionType = model.ActionType(actionType)
		entry.Outcome = model.StepOutcome(outcome)
		entry.Attempt = int(attempt)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
				s.logger.Warn("Dropping undecodable log metadata",
					zap.String("action_id", entry.ActionID.String()), zap.Error(err))
			}
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// DeleteOldLogs is a no-op; the table TTL set by EnsureSchema expires rows.
func (s *LogStore) DeleteOldLogs(ctx context.Context, retentionDays int) error {
	return nil
}

func (s *LogStore) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the table if not exists
func (s *LogStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS lifecycle_logs (
		action_id UUID,
		organization_id UUID,
		action_type LowCardinality(String),
		step_name LowCardinality(String),
		outcome LowCardinality(String),
		detail String Codec(ZSTD),
		error String Codec(ZSTD),
		attempt Int32,
		metadata String Codec(ZSTD),
		timestamp DateTime64(3, 'UTC') Codec(Delta, ZSTD)
	)
	ENGINE = MergeTree()
	ORDER BY (organization_id, action_id, timestamp)
	PARTITION BY toYYYYMMDD(timestamp)
	TTL toDateTime(timestamp) + INTERVAL %d DAY
	`, s.retentionDays)
	return s.conn.Exec(ctx, query)
}

func encodeMetadata(metadata map[string]interface{}) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode log metadata: %w", err)
	}
	return string(raw), nil
}
