package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"notifyd/internal/application/dto"
	"notifyd/internal/application/service"
	"notifyd/internal/domain/constant"
	"notifyd/internal/domain/repository"
	appErrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ScheduleHandler handles the schedule REST endpoints.
type ScheduleHandler struct {
	coordinator service.ScheduleCoordinator
	query       service.ScheduleQueryService
	log         logger.Logger
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(
	coordinator service.ScheduleCoordinator,
	query service.ScheduleQueryService,
	log logger.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		coordinator: coordinator,
		query:       query,
		log:         log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// httpStatus maps the application error taxonomy onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorJSON writes the error as a JSON response. Internal failures are
// replaced with ErrInternalServer so store and backend details never reach
// the client.
func errorJSON(c echo.Context, err error) error {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		err = appErrors.ErrInternalServer
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

// Register handles POST /schedules.
func (h *ScheduleHandler) Register(c echo.Context) error {
	var req dto.RegisterScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	id, err := h.coordinator.Register(c.Request().Context(), req)
	if err != nil {
		h.log.Warn("Register rejected: " + err.Error())
		return errorJSON(c, err)
	}

	resp, err := h.query.Get(c.Request().Context(), id)
	if err != nil {
		// Registered but unreadable; report the id so the client can retry the read.
		return c.JSON(http.StatusCreated, map[string]string{"id": id})
	}
	return c.JSON(http.StatusCreated, resp)
}

// Get handles GET /schedules/:id.
func (h *ScheduleHandler) Get(c echo.Context) error {
	resp, err := h.query.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// List handles GET /schedules with filter and pagination query parameters.
func (h *ScheduleHandler) List(c echo.Context) error {
	input, err := parseQueryInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	list, err := h.query.List(c.Request().Context(), input)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Statistics handles GET /schedules/stats.
func (h *ScheduleHandler) Statistics(c echo.Context) error {
	stats, err := h.query.Statistics(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// Update handles PATCH /schedules/:id.
func (h *ScheduleHandler) Update(c echo.Context) error {
	var req dto.UpdateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	if err := h.coordinator.UpdateSpec(c.Request().Context(), c.Param("id"), req); err != nil {
		return errorJSON(c, err)
	}

	resp, err := h.query.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Cancel handles DELETE /schedules/:id.
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	if err := h.coordinator.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CancelAll handles DELETE /schedules.
func (h *ScheduleHandler) CancelAll(c echo.Context) error {
	if err := h.coordinator.CancelAll(c.Request().Context()); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseQueryInput(c echo.Context) (repository.QueryInput, error) {
	var input repository.QueryInput

	if v := c.QueryParam("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return input, errors.New("is_active must be a boolean")
		}
		input.IsActive = &b
	}
	if v := c.QueryParam("is_recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return input, errors.New("is_recurring must be a boolean")
		}
		input.IsRecurring = &b
	}
	if v := c.QueryParam("schedule_type"); v != "" {
		t := constant.ScheduleType(v)
		if !t.Valid() {
			return input, errors.New("unknown schedule_type")
		}
		input.ScheduleType = &t
	}
	if v := c.QueryParam("scheduled_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return input, errors.New("scheduled_after must be RFC3339")
		}
		input.ScheduledAfter = &t
	}
	if v := c.QueryParam("scheduled_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return input, errors.New("scheduled_before must be RFC3339")
		}
		input.ScheduledBefore = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return input, errors.New("limit must be a non-negative integer")
		}
		input.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return input, errors.New("offset must be a non-negative integer")
		}
		input.Offset = n
	}
	return input, nil
}
