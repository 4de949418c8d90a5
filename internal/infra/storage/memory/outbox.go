package memory

import (
	"context"
	"sync"

	appoutbox "stayhub/internal/app/outbox"
)

// Outbox stages events in memory. Flush moves them to a published log
// instead of dropping them, so dev mode and tests can still observe what a
// command emitted after the middleware ran.
type Outbox struct {
	mu        sync.Mutex
	staged    []appoutbox.EventRecord
	published []appoutbox.EventRecord
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = append(o.staged, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, o.staged...)
	o.staged = nil
	return nil
}

// Staged returns the records not yet flushed.
func (o *Outbox) Staged() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.staged))
	copy(out, o.staged)
	return out
}

// Published returns everything flushed so far, oldest first.
func (o *Outbox) Published() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.published))
	copy(out, o.published)
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
