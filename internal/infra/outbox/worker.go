package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// maxClaimsPerTick bounds a single drain so one hot aggregate cannot starve
// the ticker loop.
const maxClaimsPerTick = 64

// Worker relays stored events to Kafka as CloudEvents. Each tick drains the
// claimable backlog; a publish failure reschedules the record with backoff
// instead of stopping the relay.
type Worker struct {
	Store       *Store
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	interval := w.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	workerID := w.ID
	if workerID == "" {
		workerID = uuid.NewString()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx, workerID); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context, workerID string) error {
	for i := 0; i < maxClaimsPerTick; i++ {
		doc, err := w.Store.Claim(ctx, workerID)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		w.relayOne(ctx, doc)
	}
	return nil
}

func (w *Worker) relayOne(ctx context.Context, doc *EventDocument) {
	payload, headers, err := w.envelope(doc)
	if err == nil {
		err = w.Producer.Publish(ctx, w.topicFor(doc.Name), doc.Aggregate, payload, headers)
	}
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("outbox relay failed", "event", doc.Name, "id", doc.ID, "attempts", doc.Attempts, "error", err)
		}
		_ = w.Store.MarkFailed(ctx, doc.ID, w.retryAt(doc.Attempts), err.Error())
		return
	}
	if err := w.Store.MarkSent(ctx, doc.ID); err != nil && w.Logger != nil {
		// the record stays claimed and will be re-relayed; the idempotent
		// producer keeps the broker side clean
		w.Logger.Warn("outbox mark-sent failed", "id", doc.ID, "error", err)
	}
}

// envelope wraps the stored payload in a CloudEvents 1.0 structure.
func (w *Worker) envelope(doc *EventDocument) ([]byte, map[string]string, error) {
	var data map[string]any
	if err := json.Unmarshal(doc.Payload, &data); err != nil {
		return nil, nil, err
	}
	source := w.Source
	if source == "" {
		source = "app://stayhub"
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            doc.Name + ".v1",
		"source":          source,
		"time":            doc.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := doc.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	for k, v := range doc.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// topicFor routes by aggregate: "booking.confirmed" lands on
// "booking.events.v1", "payout.completed" on "payout.events.v1".
func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return w.TopicPrefix + base + ".events.v1"
}

func (w *Worker) retryAt(attempts int) time.Time {
	switch {
	case attempts < len(w.Backoff):
		return time.Now().Add(w.Backoff[attempts])
	case len(w.Backoff) > 0:
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	default:
		return time.Now().Add(5 * time.Second)
	}
}
