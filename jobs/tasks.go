package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuthEvent is the task type for the auth audit trail.
	TaskTypeAuthEvent = "auth:event"
)

// AuthEventPayload describes one auth audit record.
type AuthEventPayload struct {
	Event  string         `json:"event"`
	UserID string         `json:"user_id,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	At     time.Time      `json:"at"`
}

// NewAuthEventTask constructs an Asynq task carrying the payload.
func NewAuthEventTask(payload AuthEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuthEvent, data), nil
}

// AuthEventRecorder enqueues audit events from the auth service. Enqueue
// failures are logged and swallowed: auditing never blocks a login.
type AuthEventRecorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAuthEventRecorder constructs a recorder bound to the Redis queue.
func NewAuthEventRecorder(redisAddr string, logger *slog.Logger) *AuthEventRecorder {
	return &AuthEventRecorder{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// Record implements the auth service Recorder port.
func (r *AuthEventRecorder) Record(ctx context.Context, event, userID string, meta map[string]any) {
	if r == nil || r.client == nil {
		return
	}
	task, err := NewAuthEventTask(AuthEventPayload{Event: event, UserID: userID, Meta: meta, At: time.Now().UTC()})
	if err != nil {
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3)); err != nil {
		if r.logger != nil {
			r.logger.Warn("enqueue auth event", slog.String("event", event), slog.Any("error", err))
		}
	}
}

// Close releases the underlying queue client.
func (r *AuthEventRecorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
