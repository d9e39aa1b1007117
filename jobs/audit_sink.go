package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditSink persists auth events into audit_logs.
type AuditSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditSink constructs a sink writing through the provided pool.
func NewAuditSink(pool *pgxpool.Pool, logger *slog.Logger) *AuditSink {
	return &AuditSink{pool: pool, logger: logger}
}

// HandleAuthEvent processes TaskTypeAuthEvent tasks.
func (s *AuditSink) HandleAuthEvent(ctx context.Context, t *asynq.Task) error {
	var payload AuthEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	meta, err := json.Marshal(payload.Meta)
	if err != nil {
		return asynq.SkipRetry
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (event, user_id, meta, occurred_at) VALUES ($1, $2, $3, $4)`,
		payload.Event, nullableID(payload.UserID), meta, payload.At)
	if err != nil && s.logger != nil {
		s.logger.Error("persist auth event", slog.String("event", payload.Event), slog.Any("error", err))
	}
	return err
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
