package policies

import (
	"context"
	"errors"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/daterange"
)

var ErrCalendarConflict = errors.New("calendar: range overlaps an existing block")

// Calendar is the availability calendar owned by the listing subsystem. The
// booking state machine is its only financial-side writer: confirming blocks
// the stay interval, cancelling a confirmed booking releases it. No two
// confirmed bookings may hold overlapping intervals for one property.
type Calendar interface {
	Block(ctx context.Context, propertyID string, r daterange.DateRange, id booking.BookingID) error
	Unblock(ctx context.Context, id booking.BookingID) error
	HasOverlap(ctx context.Context, propertyID string, r daterange.DateRange) (bool, error)
}
