package booking

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domaincancel "stayhub/internal/domain/cancellation"
	domainpayout "stayhub/internal/domain/payout"
	"stayhub/internal/domain/shared/events"
	"stayhub/internal/domain/shared/money"

	payouthandlers "stayhub/internal/app/handlers/payout"
)

const cancelBookingKey = "booking.cancel"

var ErrCancelNotAllowed = errors.New("booking: actor may not cancel this booking")

type CancelBookingCommand struct {
	BookingID string
	ActorID   string
	Reason    string
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

// ManagesOwnTransaction: the state change commits before the gateway refund
// is attempted, and the refund outcome lands in a follow-up transaction.
func (c CancelBookingCommand) ManagesOwnTransaction() {}

type CancelBookingResult struct {
	BookingID          string `json:"booking_id"`
	RefundPercent      string `json:"refund_percent"`
	RefundAmount       int64  `json:"refund_amount"`
	Currency           string `json:"currency"`
	OwnerCompensation  int64  `json:"owner_compensation"`
	GracePeriodApplied bool   `json:"grace_period_applied"`
	DaysBeforeCheckIn  int    `json:"days_before_check_in"`
	RefundStatus       string `json:"refund_status,omitempty"`
}

// CancelBookingHandler runs the full cancellation flow: assess the refund,
// cancel the booking, release the calendar, restore the promo code, adjust or
// replace any live payout and, when money is owed back, refund through the
// gateway. The booking is marked refunded even when the gateway call fails;
// the refund row is then parked for manual review.
type CancelBookingHandler struct {
	UoWFactory    uow.UoWFactory
	Gateway       policies.PaymentGateway
	Subscriptions policies.Subscriptions
	Settings      policies.Settings
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Logger        *slog.Logger
}

type cancellationState struct {
	outcome       domaincancel.Outcome
	currency      string
	refundTxID    string
	originalRef   string
	refundPending bool
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*CancelBookingResult, error) {
	now := time.Now().UTC()

	var state cancellationState
	err := support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		return h.cancelPhase(ctx, unit, cmd, now, &state)
	})
	if err != nil {
		return nil, err
	}

	refundStatus := ""
	if state.refundPending {
		refundRef, refundErr := h.Gateway.Refund(ctx, state.originalRef, state.outcome.RefundAmount, map[string]string{
			"booking_id": cmd.BookingID,
		})
		err = support.RunInUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			return h.settlePhase(ctx, unit, cmd, now, &state, refundRef, refundErr)
		})
		if err != nil {
			return nil, err
		}
		if refundErr != nil {
			refundStatus = string(domainbilling.TransactionPending)
			if h.Logger != nil {
				h.Logger.Error("gateway refund failed, parked for review", "booking_id", cmd.BookingID, "error", refundErr)
			}
		} else {
			refundStatus = string(domainbilling.TransactionCompleted)
		}
	}

	return &CancelBookingResult{
		BookingID:          cmd.BookingID,
		RefundPercent:      state.outcome.RefundPercent.String(),
		RefundAmount:       state.outcome.RefundAmount.Amount,
		Currency:           state.currency,
		OwnerCompensation:  state.outcome.OwnerCompensation.Amount,
		GracePeriodApplied: state.outcome.GracePeriodApplied,
		DaysBeforeCheckIn:  state.outcome.DaysBeforeCheckIn,
		RefundStatus:       refundStatus,
	}, nil
}

// cancelPhase performs every database mutation of the cancellation. It commits
// before any gateway interaction.
func (h *CancelBookingHandler) cancelPhase(ctx context.Context, unit uow.UnitOfWork, cmd CancelBookingCommand, now time.Time, state *cancellationState) error {
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return err
	}
	if !b.CancellableBy(cmd.ActorID) {
		return ErrCancelNotAllowed
	}
	state.currency = b.Price.Total.Currency

	tier := domainbilling.TierFree
	if h.Subscriptions != nil {
		if active, err := h.Subscriptions.ActiveTier(ctx, b.OwnerID); err == nil {
			tier = active
		}
	}
	commission, err := payouthandlers.EnsureCommission(ctx, unit, b, tier, now)
	if err != nil {
		return err
	}

	outcome, err := domaincancel.Assess(domaincancel.Assessment{
		Policy:      b.Policy,
		Range:       b.Range,
		BasePrice:   b.Price.BasePrice,
		CleaningFee: b.Price.CleaningFee,
		Paid:        b.PaymentStatus == domainbooking.PaymentPaid,
		BookedAt:    b.CreatedAt,
		CancelAt:    now,
		GracePeriod: h.gracePeriod(ctx),
		OwnerRate:   commission.OwnerRate,
	})
	if err != nil {
		return err
	}
	state.outcome = outcome

	wasConfirmed := b.Status == domainbooking.StatusConfirmed
	if err := b.Cancel(cmd.ActorID, cmd.Reason, now); err != nil {
		return err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	if wasConfirmed {
		if err := unit.Calendar().Unblock(ctx, b.ID); err != nil {
			return err
		}
	}

	if b.Price.PromoCode != "" {
		promo, err := unit.Promos().ByCode(ctx, b.Price.PromoCode)
		if err == nil {
			promo.Reactivate()
			if err := unit.Promos().Save(ctx, promo); err != nil {
				return err
			}
		} else if !errors.Is(err, domainbooking.ErrPromoNotFound) {
			return err
		}
	}

	payoutEvents, err := h.adjustPayouts(ctx, unit, b, commission, outcome, now)
	if err != nil {
		return err
	}

	if outcome.RefundAmount.IsPositive() {
		payTx, err := unit.Transactions().LatestByBooking(ctx, b.ID, domainbilling.TransactionPayment)
		if err != nil {
			return err
		}
		state.originalRef = payTx.ExternalRef
		refundTx := domainbilling.NewTransaction(uuid.NewString(), domainbilling.TransactionRefund, outcome.RefundAmount, b.TenantID, b.ID, "refund for cancelled stay", now)
		if err := refundTx.MarkProcessing(now); err != nil {
			return err
		}
		if err := unit.Transactions().Save(ctx, refundTx); err != nil {
			return err
		}
		state.refundTxID = refundTx.ID
		state.refundPending = true
	} else if b.PaymentStatus == domainbooking.PaymentPaid {
		// Nothing to return; the booking still ends refunded from the
		// tenant's perspective with a zero amount.
		if err := b.SetPaymentStatus(domainbooking.PaymentRefunded, now); err != nil {
			return err
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return err
		}
	}

	evs := b.PendingEvents()
	b.ClearEvents()
	evs = append(evs, payoutEvents...)
	return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs)
}

// settlePhase records the gateway refund outcome after the cancellation
// already committed.
func (h *CancelBookingHandler) settlePhase(ctx context.Context, unit uow.UnitOfWork, cmd CancelBookingCommand, now time.Time, state *cancellationState, refundRef string, refundErr error) error {
	row, err := unit.Transactions().ByID(ctx, state.refundTxID)
	if err != nil {
		return err
	}
	if refundErr != nil {
		if err := row.ParkForReview("gateway refund failed: "+refundErr.Error(), now); err != nil {
			return err
		}
	} else {
		if err := row.MarkCompleted(refundRef, now); err != nil {
			return err
		}
	}
	if err := unit.Transactions().Save(ctx, row); err != nil {
		return err
	}

	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return err
	}
	if err := b.SetPaymentStatus(domainbooking.PaymentRefunded, now); err != nil {
		return err
	}
	return unit.Bookings().Save(ctx, b)
}

// adjustPayouts reconciles live payouts with the cancellation outcome: the
// booking's contribution leaves the payout and any owner compensation takes
// its place. A batch that would go negative aborts the whole cancellation.
func (h *CancelBookingHandler) adjustPayouts(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, commission *domainbilling.Commission, outcome domaincancel.Outcome, now time.Time) ([]events.DomainEvent, error) {
	live, err := unit.Payouts().LiveByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	var staged []events.DomainEvent
	comp := outcome.OwnerCompensation

	if len(live) == 0 {
		if comp.IsPositive() {
			p, err := domainpayout.NewCompensation(uuid.NewString(), b.OwnerID, comp, b.ID, b.Range.CheckIn, b.Range.CheckOut, now)
			if err != nil {
				return nil, err
			}
			if err := unit.Payouts().Save(ctx, p); err != nil {
				return nil, err
			}
			staged = append(staged, p.PendingEvents()...)
			p.ClearEvents()
		}
		return staged, nil
	}

	for _, p := range live {
		if len(p.BookingIDs) == 1 {
			if comp.IsPositive() {
				if err := p.Reprice(comp, "repriced to owner compensation for cancelled booking "+string(b.ID), now); err != nil {
					return nil, err
				}
			} else {
				if err := p.Cancel("booking "+string(b.ID)+" cancelled with full refund", now); err != nil {
					return nil, err
				}
			}
		} else {
			if err := p.RemoveBooking(b.ID); err != nil {
				return nil, err
			}
			contribution, err := b.Price.Total.Sub(commission.OwnerAmount)
			if err != nil {
				return nil, err
			}
			remaining, err := p.Amount.Sub(contribution)
			if err != nil {
				return nil, err
			}
			if comp.IsPositive() {
				remaining, err = remaining.Add(comp)
				if err != nil {
					return nil, err
				}
			}
			if err := p.Reprice(remaining, "booking "+string(b.ID)+" cancelled, batch repriced", now); err != nil {
				return nil, err
			}
		}
		if err := unit.Payouts().Save(ctx, p); err != nil {
			return nil, err
		}
		staged = append(staged, p.PendingEvents()...)
		p.ClearEvents()
		// compensation is carried by the first adjusted payout only
		comp = money.Zero(comp.Currency)
	}
	return staged, nil
}

func (h *CancelBookingHandler) gracePeriod(ctx context.Context) time.Duration {
	if h.Settings == nil {
		return domaincancel.DefaultGracePeriod
	}
	raw := h.Settings.Get(ctx, policies.SettingGracePeriodMinutes, "")
	if raw == "" {
		return domaincancel.DefaultGracePeriod
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return domaincancel.DefaultGracePeriod
	}
	return time.Duration(minutes) * time.Minute
}

var _ commands.Handler[CancelBookingCommand, *CancelBookingResult] = (*CancelBookingHandler)(nil)
var _ middleware.SelfManagedTx = CancelBookingCommand{}
