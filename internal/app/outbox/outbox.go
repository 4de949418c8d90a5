package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/shared/events"
)

// EventRecord is the storage shape of a domain event awaiting relay. The
// Aggregate id doubles as the Kafka partition key.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

// JSONEventEncoder serializes events as plain JSON. IDGenerator is only
// overridden in tests.
type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:         e.newID(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}

func (e JSONEventEncoder) newID() string {
	if e.IDGenerator != nil {
		return e.IDGenerator()
	}
	return uuid.NewString()
}

// RecordDomainEvents stages a batch of aggregate events on the outbox. A nil
// outbox drops them, which the memory flavor uses in narrow tests.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, batch []events.DomainEvent) error {
	if box == nil || len(batch) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range batch {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.EventName(), err)
		}
		if err := box.Add(ctx, rec); err != nil {
			return fmt.Errorf("stage %s: %w", ev.EventName(), err)
		}
	}
	return nil
}
