package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/models"
)

type handlers struct {
	Deps
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", requireIdentity(h.Verifier))
	api.GET("/tiers", h.tiers)

	api.POST("/bookings", h.propose)
	api.GET("/pairs/:other/booking", h.forPair)
	api.GET("/bookings/:id", h.getBooking)
	api.POST("/bookings/:id/accept", h.accept)
	api.POST("/bookings/:id/decline", h.decline)
	api.POST("/bookings/:id/cancel", h.cancel)
	api.GET("/bookings/:id/remaining", h.remaining)

	api.GET("/bookings/:id/messages", h.listMessages)
	api.POST("/bookings/:id/messages", h.sendMessage)
	api.POST("/bookings/:id/clear", h.clear)
	api.GET("/bookings/:id/events", h.events)
	api.DELETE("/messages/:id", h.deleteForEveryone)
	api.POST("/messages/:id/hide", h.deleteForMe)
}

// caller returns the party resolved by requireIdentity.
func caller(c *gin.Context) string {
	id, _ := identity.Context{}.CurrentIdentity(c.Request.Context())
	return id
}

type proposeRequest struct {
	Other  string `json:"other"`
	Tier   string `json:"tier"`
	SeenID string `json:"seen_id"` // booking the client already shows for the pair
}

type bookingResponse struct {
	Booking   *models.Booking    `json:"booking"`
	Role      booking.Role       `json:"role"`
	Countdown *countdownResponse `json:"countdown,omitempty"`
}

type countdownResponse struct {
	Started   bool       `json:"started"`
	Expired   bool       `json:"expired"`
	Hours     int        `json:"hours"`
	Minutes   int        `json:"minutes"`
	Display   string     `json:"display"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *handlers) countdown(b *models.Booking) *countdownResponse {
	cd := chat.Remaining(b, h.Now(), h.TTL)
	resp := &countdownResponse{
		Started: cd.Started,
		Expired: cd.Expired,
		Hours:   cd.Hours,
		Minutes: cd.Minutes,
		Display: cd.String(),
	}
	if at := chat.ExpiresAt(b, h.TTL); !at.IsZero() {
		resp.ExpiresAt = &at
	}
	return resp
}

func (h *handlers) view(b *models.Booking, party string) bookingResponse {
	if b == nil {
		return bookingResponse{Role: booking.RoleNone}
	}
	return bookingResponse{Booking: b, Role: booking.RoleOf(b, party), Countdown: h.countdown(b)}
}

// partyBooking loads a booking the caller belongs to.
func (h *handlers) partyBooking(ctx context.Context, id, party string) (*models.Booking, error) {
	b, err := h.Bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.HasParty(party) {
		return nil, apperr.NotFound("api: booking "+id, "booking not found")
	}
	return b, nil
}

func (h *handlers) tiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.Bookings.Tiers()})
}

func (h *handlers) propose(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("api: propose", "invalid request body"))
		return
	}
	opts := booking.ProposeOpts{Self: caller(c), Other: req.Other, Tier: req.Tier}
	if req.SeenID != "" {
		opts.Seen = &models.Booking{ID: req.SeenID}
	}
	b, err := h.Bookings.Propose(c.Request.Context(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(b, opts.Self))
}

func (h *handlers) forPair(c *gin.Context) {
	self := caller(c)
	b, err := h.Bookings.ForPair(c.Request.Context(), self, c.Param("other"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(b, self))
}

func (h *handlers) getBooking(c *gin.Context) {
	self := caller(c)
	b, err := h.partyBooking(c.Request.Context(), c.Param("id"), self)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(b, self))
}

func (h *handlers) accept(c *gin.Context) {
	self := caller(c)
	b, err := h.Bookings.Accept(c.Request.Context(), c.Param("id"), self)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(b, self))
}

func (h *handlers) decline(c *gin.Context) {
	if err := h.Bookings.Decline(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) cancel(c *gin.Context) {
	if err := h.Bookings.Cancel(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) remaining(c *gin.Context) {
	b, err := h.partyBooking(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.countdown(b))
}

func (h *handlers) listMessages(c *gin.Context) {
	msgs, err := h.Messages.ListVisible(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("api: send", "invalid request body"))
		return
	}
	msg, err := h.Messages.Send(c.Request.Context(), c.Param("id"), caller(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *handlers) clear(c *gin.Context) {
	at, err := h.Messages.ClearForViewer(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared_at": at})
}

func (h *handlers) deleteForEveryone(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	if err := h.Messages.DeleteForEveryone(c.Request.Context(), id, caller(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteForMe(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	msg, err := h.Messages.DeleteForMe(c.Request.Context(), id, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func messageID(c *gin.Context) (uint, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		writeError(c, apperr.Validation("api: message id", "invalid message id"))
		return 0, false
	}
	return uint(n), true
}
