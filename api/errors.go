package api

import (
	"net/http"

	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/repository"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.Is(err, booking.ErrInvalidInput):
		status = http.StatusBadRequest
	case errs.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errs.Is(err, booking.ErrInvalidTransition):
		status = http.StatusConflict
	}
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
