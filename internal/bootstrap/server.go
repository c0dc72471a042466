package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Domenick1991/barberqueue/api"
	"github.com/Domenick1991/barberqueue/config"
	"github.com/Domenick1991/barberqueue/internal/logger"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/Domenick1991/barberqueue/internal/service/booking"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	swaggerSpec  = "barberqueue.swagger.json"
	readyTimeout = 2 * time.Second
)

// ReadinessCheck probes one backing service for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Run serves the HTTP API and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg *config.Config, log *slog.Logger, bookingSvc booking.BookingUseCase, checks ...ReadinessCheck) error {
	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: NewRouter(cfg, log, bookingSvc, checks...),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("address", cfg.HTTP.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrapf(err, "serve http on %s", cfg.HTTP.Address)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	}
}

func NewRouter(cfg *config.Config, log *slog.Logger, bookingSvc booking.BookingUseCase, checks ...ReadinessCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readiness(log, checks))

	v1 := router.Group("/api/v1")
	api.NewBookingHandler(bookingSvc).Register(v1)
	api.NewQueueHandler(bookingSvc).Register(v1)

	if cfg.HTTP.SwaggerDir != "" {
		router.Static("/swagger", cfg.HTTP.SwaggerDir)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/"+swaggerSpec))))
	}
	return router
}

func readiness(log *slog.Logger, checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		failed := gin.H{}
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				log.Warn("readiness check failed", slog.String("check", check.Name), slog.Any("error", err))
				failed[check.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
