package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"account-service/internal/bucketing"
	"account-service/internal/models"
	"account-service/internal/util"
)

const insertEventSQL = `INSERT INTO security_events
	(event_id, event_type, user_id, identifier, remote_addr, detail, date_bucket, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// EventProducer publishes a serialized event to the streaming sink.
type EventProducer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// EventSink persists a serialized event to the warehouse sink.
type EventSink interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// Recorder writes the security audit trail. Both sinks are optional and
// best-effort: a sink failure degrades to a log line and never blocks
// or fails the authentication path.
type Recorder struct {
	producer EventProducer
	sink     EventSink
	buckets  *bucketing.Manager
	timeout  time.Duration
}

func NewRecorder(producer EventProducer, sink EventSink, buckets *bucketing.Manager) *Recorder {
	return &Recorder{
		producer: producer,
		sink:     sink,
		buckets:  buckets,
		timeout:  5 * time.Second,
	}
}

// Record dispatches the event to the configured sinks asynchronously.
// The caller's context is not used: the write must survive the request
// that triggered it.
func (r *Recorder) Record(event *models.SecurityEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if r.producer == nil && r.sink == nil {
		return
	}

	go r.dispatch(event)
}

func (r *Recorder) dispatch(event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if r.producer != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			util.Error("Failed to serialize security event", util.ErrorField(err))
			return
		}
		if err := r.producer.Produce(ctx, []byte(event.UserID), payload); err != nil {
			util.Warn("Security event stream publish failed",
				util.String("event_type", event.EventType),
				util.ErrorField(err))
		}
	}

	if r.sink != nil {
		err := r.sink.Exec(ctx, insertEventSQL,
			event.EventID, event.EventType, event.UserID, event.Identifier,
			event.RemoteAddr, event.Detail,
			r.buckets.DateBucket(event.CreatedAt), event.CreatedAt,
		)
		if err != nil {
			util.Warn("Security event warehouse insert failed",
				util.String("event_type", event.EventType),
				util.ErrorField(err))
		}
	}
}
