package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/careops/services/automation/internal/models"
	"example.com/careops/services/automation/internal/services"
	"example.com/careops/services/automation/internal/tracing"
)

// BookingsHandler handles the public booking surface and the staff booking
// endpoints.
type BookingsHandler struct {
	bookings *services.BookingService
	tracer   tracing.Tracer
}

// NewBookingsHandler creates a new bookings handler.
func NewBookingsHandler(bookings *services.BookingService, tracer tracing.Tracer) *BookingsHandler {
	return &BookingsHandler{
		bookings: bookings,
		tracer:   tracer,
	}
}

// CreateBookingRequest is the public booking form payload.
type CreateBookingRequest struct {
	FullName  string     `json:"full_name" binding:"required"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	ServiceID *uuid.UUID `json:"service_id"`
	StartsAt  time.Time  `json:"starts_at" binding:"required"`
	Notes     string     `json:"notes"`
}

// TransitionRequest is a staff status-change request.
type TransitionRequest struct {
	Status models.BookingStatus `json:"status" binding:"required"`
	Notes  string               `json:"notes"`
}

// ReplaceScheduleRequest replaces one weekday's business hours.
type ReplaceScheduleRequest struct {
	Rows []ScheduleRow `json:"rows"`
}

// ScheduleRow is one open/close block in a schedule update.
type ScheduleRow struct {
	IsOpen    bool   `json:"is_open"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// HandleCreateBooking handles POST /b/:slug/bookings.
func (h *BookingsHandler) HandleCreateBooking(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-booking")
	defer h.tracer.EndTransaction(txn)

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slug := c.Param("slug")
	h.tracer.AddAttribute(txn, "workspace_slug", slug)

	b, err := h.bookings.CreatePublicBooking(c.Request.Context(), slug, services.CreateBookingInput{
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		ServiceID: req.ServiceID,
		StartsAt:  req.StartsAt,
		Notes:     req.Notes,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// HandleAvailableSlots handles GET /b/:slug/slots?date=2026-08-27.
func (h *BookingsHandler) HandleAvailableSlots(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-available-slots")
	defer h.tracer.EndTransaction(txn)

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	var serviceID *uuid.UUID
	if raw := c.Query("service_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "service_id must be a UUID"})
			return
		}
		serviceID = &id
	}

	slots, err := h.bookings.AvailableSlots(c.Request.Context(), c.Param("slug"), date, serviceID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "slots": slots})
}

// HandleListServices handles GET /b/:slug/services.
func (h *BookingsHandler) HandleListServices(c *gin.Context) {
	svcs, err := h.bookings.ListServices(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": svcs})
}

// HandleListBookings handles GET /workspaces/:workspace_id/bookings.
func (h *BookingsHandler) HandleListBookings(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	bookings, err := h.bookings.ListBookings(c.Request.Context(), workspaceID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// HandleGetBooking handles GET /workspaces/:workspace_id/bookings/:booking_id.
func (h *BookingsHandler) HandleGetBooking(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "booking_id")
	if !ok {
		return
	}
	b, err := h.bookings.GetBooking(c.Request.Context(), workspaceID, bookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// HandleTransition handles POST /workspaces/:workspace_id/bookings/:booking_id/status.
func (h *BookingsHandler) HandleTransition(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-booking-transition")
	defer h.tracer.EndTransaction(txn)

	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "booking_id")
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.AddAttribute(txn, "target_status", string(req.Status))

	b, err := h.bookings.Transition(c.Request.Context(), workspaceID, bookingID, req.Status, req.Notes)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// HandleGetSchedule handles GET /workspaces/:workspace_id/schedule.
func (h *BookingsHandler) HandleGetSchedule(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	hours, err := h.bookings.GetSchedule(c.Request.Context(), workspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": hours})
}

// HandleReplaceScheduleDay handles PUT /workspaces/:workspace_id/schedule/:day.
func (h *BookingsHandler) HandleReplaceScheduleDay(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "workspace_id")
	if !ok {
		return
	}
	day := intParam(c, "day", -1)
	var req ReplaceScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows := make([]models.BusinessHour, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, models.BusinessHour{
			IsOpen:    row.IsOpen,
			OpenTime:  row.OpenTime,
			CloseTime: row.CloseTime,
		})
	}
	if err := h.bookings.ReplaceScheduleDay(c.Request.Context(), workspaceID, day, rows); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// RegisterRoutes registers the handler's routes.
func (h *BookingsHandler) RegisterRoutes(router *gin.Engine) {
	public := router.Group("/b/:slug")
	{
		public.GET("/services", h.HandleListServices)
		public.GET("/slots", h.HandleAvailableSlots)
		public.POST("/bookings", h.HandleCreateBooking)
	}

	staff := router.Group("/workspaces/:workspace_id")
	{
		staff.GET("/bookings", h.HandleListBookings)
		staff.GET("/bookings/:booking_id", h.HandleGetBooking)
		staff.POST("/bookings/:booking_id/status", h.HandleTransition)
		staff.GET("/schedule", h.HandleGetSchedule)
		staff.PUT("/schedule/:day", h.HandleReplaceScheduleDay)
	}
}
