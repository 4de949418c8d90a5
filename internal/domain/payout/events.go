package payout

import (
	"time"

	"stayhub/internal/domain/shared/money"
)

type PayoutScheduled struct {
	PayoutID    string
	OwnerID     string
	Amount      money.Money
	ScheduledAt time.Time
	At          time.Time
}

func (e PayoutScheduled) EventName() string     { return "payout.scheduled" }
func (e PayoutScheduled) AggregateID() string   { return e.PayoutID }
func (e PayoutScheduled) OccurredAt() time.Time { return e.At }

type PayoutCompleted struct {
	PayoutID    string
	OwnerID     string
	Amount      money.Money
	ExternalRef string
	At          time.Time
}

func (e PayoutCompleted) EventName() string     { return "payout.completed" }
func (e PayoutCompleted) AggregateID() string   { return e.PayoutID }
func (e PayoutCompleted) OccurredAt() time.Time { return e.At }

type PayoutFailed struct {
	PayoutID string
	OwnerID  string
	Reason   string
	At       time.Time
}

func (e PayoutFailed) EventName() string     { return "payout.failed" }
func (e PayoutFailed) AggregateID() string   { return e.PayoutID }
func (e PayoutFailed) OccurredAt() time.Time { return e.At }

type PayoutCancelled struct {
	PayoutID string
	OwnerID  string
	Reason   string
	At       time.Time
}

func (e PayoutCancelled) EventName() string     { return "payout.cancelled" }
func (e PayoutCancelled) AggregateID() string   { return e.PayoutID }
func (e PayoutCancelled) OccurredAt() time.Time { return e.At }
