package email

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
)

// Sender delivers client notifications. It only logs the message for now.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event domain.NotificationEvent) error {
	if event.ClientID == "" {
		return errs.Newf("notification %s has no recipient", event.NotificationID)
	}
	s.logger.InfoContext(ctx, "send notification to client",
		slog.String("client_id", event.ClientID),
		slog.String("booking_id", event.BookingID),
		slog.String("type", event.Type),
		slog.String("message", event.Message))
	return nil
}
