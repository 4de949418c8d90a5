package daterange

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("daterange: checkout must be after checkin")

// DateRange represents a half-open stay interval [checkIn, checkOut).
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func New(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: checkIn.UTC(), CheckOut: checkOut.UTC()}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (dr DateRange) Validate() error {
	if dr.CheckOut.IsZero() || dr.CheckIn.IsZero() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return int(dr.CheckOut.Sub(dr.CheckIn).Hours() / 24)
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

// DaysUntilCheckIn counts whole calendar days between now's date and the
// check-in date. Cancellation policy windows compare dates, not instants.
func (dr DateRange) DaysUntilCheckIn(now time.Time) int {
	return int(truncateToDay(dr.CheckIn).Sub(truncateToDay(now)).Hours() / 24)
}

// CheckInPassed reports whether the check-in date is behind now's date.
func (dr DateRange) CheckInPassed(now time.Time) bool {
	return truncateToDay(dr.CheckIn).Before(truncateToDay(now))
}

// CheckOutPassed reports whether the checkout date is behind or equal to now's date.
func (dr DateRange) CheckOutPassed(now time.Time) bool {
	return !truncateToDay(dr.CheckOut).After(truncateToDay(now))
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
