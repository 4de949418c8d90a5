package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	bookingapp "stayhub/internal/app/handlers/booking"
	payoutapp "stayhub/internal/app/handlers/payout"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
	domaincancel "stayhub/internal/domain/cancellation"
	domainpayout "stayhub/internal/domain/payout"
	domainpricing "stayhub/internal/domain/pricing"
	domainrange "stayhub/internal/domain/shared/daterange"
)

var notFoundErrs = []error{
	domainbooking.ErrBookingNotFound,
	domainpayout.ErrPayoutNotFound,
	policies.ErrPropertyNotFound,
	policies.ErrTenantNotFound,
	domainbilling.ErrTransactionNotFound,
	bookingapp.ErrUnknownReference,
}

var conflictErrs = []error{
	bookingapp.ErrDatesUnavailable,
	bookingapp.ErrPaymentNotDue,
	bookingapp.ErrExternalBooking,
	policies.ErrCalendarConflict,
	domainbooking.ErrInvalidState,
	domainbooking.ErrPaymentRequired,
	domainbooking.ErrCheckOutNotPassed,
	domainpayout.ErrInvalidState,
	domainpayout.ErrAlreadyLive,
	domainbilling.ErrTransactionFinal,
	payoutapp.ErrBookingNotEligible,
	uow.ErrConcurrentUpdate,
}

var badRequestErrs = []error{
	domainrange.ErrInvalidRange,
	domainbooking.ErrInvalidGuests,
	domainbooking.ErrGuestsExceeded,
	domainbooking.ErrCheckInPassed,
	domainbooking.ErrPromoNotFound,
	domainbooking.ErrPromoInactive,
	domainbooking.ErrPromoExpired,
	domainbooking.ErrPromoWrongUser,
	domainpricing.ErrNoNights,
	domainpricing.ErrCheckInInPast,
	domaincancel.ErrUnknownPolicy,
}

// respondError maps application sentinels onto HTTP statuses. Anything not
// recognized is an internal failure and hides its detail from the client.
func respondError(c *gin.Context, err error) {
	switch {
	case matchesAny(err, notFoundErrs):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, bookingapp.ErrCancelNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case matchesAny(err, conflictErrs):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case matchesAny(err, badRequestErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, policies.ErrGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func matchesAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
