package ginserver

import (
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	payoutapp "stayhub/internal/app/handlers/payout"
)

// PayoutHandler exposes the administrative payout operations. The worker
// drives advance and execute on a schedule; these routes exist for operators.
type PayoutHandler struct {
	Commands commands.Bus
}

type schedulePayoutRequest struct {
	BookingID string     `json:"booking_id"`
	At        *time.Time `json:"at"`
}

func (h PayoutHandler) Schedule(c *gin.Context) {
	var req schedulePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := payoutapp.SchedulePayoutCommand{BookingID: req.BookingID}
	if req.At != nil {
		cmd.At = *req.At
	}
	result, err := commands.Dispatch[payoutapp.SchedulePayoutCommand, *payoutapp.SchedulePayoutResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h PayoutHandler) Advance(c *gin.Context) {
	cmd := payoutapp.AdvanceScheduledCommand{Now: time.Now()}
	result, err := commands.Dispatch[payoutapp.AdvanceScheduledCommand, *payoutapp.AdvanceScheduledResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PayoutHandler) Execute(c *gin.Context) {
	cmd := payoutapp.ExecuteReadyCommand{Now: time.Now()}
	result, err := commands.Dispatch[payoutapp.ExecuteReadyCommand, *payoutapp.ExecuteReadyResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cancelPayoutRequest struct {
	Reason string `json:"reason"`
}

func (h PayoutHandler) Cancel(c *gin.Context) {
	var req cancelPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := payoutapp.CancelPayoutCommand{PayoutID: c.Param("id"), Reason: req.Reason}
	result, err := commands.Dispatch[payoutapp.CancelPayoutCommand, *payoutapp.CancelPayoutResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PayoutHTTP = PayoutHandler{}
