package api

import (
	"net/http"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service booking.BookingUseCase
}

type queueEntry struct {
	bookingResponse
	Position int `json:"position"`
}

type queueResponse struct {
	BarbershopID string            `json:"barbershop_id"`
	Date         string            `json:"date"`
	Queue        []queueEntry      `json:"queue"`
	Stats        domain.QueueStats `json:"stats"`
}

func NewQueueHandler(service booking.BookingUseCase) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Register(router *gin.RouterGroup) {
	router.GET("/barbershops/:id/queue", h.get)
}

func (h *QueueHandler) get(c *gin.Context) {
	view, err := h.service.GetQueue(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := queueResponse{
		BarbershopID: view.BarbershopID,
		Date:         view.Date,
		Queue:        make([]queueEntry, 0, len(view.Bookings)),
		Stats:        view.Stats,
	}
	for i := range view.Bookings {
		resp.Queue = append(resp.Queue, queueEntry{
			bookingResponse: toBookingResponse(&view.Bookings[i]),
			Position:        view.Bookings[i].QueuePosition,
		})
	}
	c.JSON(http.StatusOK, resp)
}
