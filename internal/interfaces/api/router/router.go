package router

import (
	"fmt"
	"net/http"

	"notifyd/internal/interfaces/api/handler"
	"notifyd/internal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Config holds the dependencies for the router.
type Config struct {
	ScheduleHandler *handler.ScheduleHandler
	Logger          logger.Logger
}

// NewRouter creates and configures a new Echo router.
func NewRouter(cfg *Config) *echo.Echo {
	e := echo.New()

	// Middleware
	e.Use(middleware.RequestID())
	// Use custom logger that integrates with our logger interface
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogHost:      true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			cfg.Logger.Info(fmt.Sprintf("REQUEST: method=%s, uri=%s, status=%d, latency=%s, req_id=%s",
				v.Method, v.URI, v.Status, v.Latency, v.RequestID,
			))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "notifyd")
	})

	e.POST("/schedules", cfg.ScheduleHandler.Register)
	e.GET("/schedules", cfg.ScheduleHandler.List)
	e.GET("/schedules/stats", cfg.ScheduleHandler.Statistics)
	e.GET("/schedules/:id", cfg.ScheduleHandler.Get)
	e.PATCH("/schedules/:id", cfg.ScheduleHandler.Update)
	e.DELETE("/schedules/:id", cfg.ScheduleHandler.Cancel)
	e.DELETE("/schedules", cfg.ScheduleHandler.CancelAll)

	cfg.Logger.Info("Router initialized with routes.")
	return e
}
