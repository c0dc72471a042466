package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	ClientID    string `json:"client_id" binding:"required"`
	Date        string `json:"date"`
	Time        string `json:"time" binding:"required"`
	IsEmergency bool   `json:"is_emergency"`
	Status      string `json:"status"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type bookingResponse struct {
	ID                 string `json:"id"`
	BarbershopID       string `json:"barbershop_id"`
	ClientID           string `json:"client_id"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	IsEmergency        bool   `json:"is_emergency"`
	Status             string `json:"status"`
	NotificationStatus string `json:"notification_status,omitempty"`
}

type notificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/barbershops/:id/bookings", h.create)
	router.PATCH("/bookings/:id/status", h.updateStatus)
	router.GET("/bookings/:id/notifications", h.notifications)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		BarbershopID: c.Param("id"),
		ClientID:     req.ClientID,
		Date:         req.Date,
		Time:         req.Time,
		IsEmergency:  req.IsEmergency,
		Status:       domain.BookingStatus(req.Status),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), domain.BookingStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) notifications(c *gin.Context) {
	list, err := h.service.ListNotifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Type:      string(n.Type),
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": c.Param("id"), "notifications": out})
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                 b.ID,
		BarbershopID:       b.BarbershopID,
		ClientID:           b.ClientID,
		Date:               b.Date,
		Time:               b.Time,
		IsEmergency:        b.IsEmergency,
		Status:             string(b.Status),
		NotificationStatus: string(b.NotificationStatus),
	}
}
