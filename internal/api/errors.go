package api

import (
	"errors"
	"net/http"

	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Date    string `json:"date,omitempty"`
	Slot    string `json:"slot,omitempty"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{Message: err.Error()}

	var he *echo.HTTPError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError

	switch {
	case errors.As(err, &he):
		resp.Error = "request_error"
		if m, ok := he.Message.(string); ok {
			resp.Message = m
		}
		return he.Code, resp
	case errors.As(err, &validation):
		resp.Error = "validation_error"
		resp.Field = validation.Field
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrNotFound):
		resp.Error = "not_found"
		return http.StatusNotFound, resp
	case errors.As(err, &conflict):
		resp.Error = "conflict"
		resp.Code = conflict.Code
		resp.Date = conflict.Date.Format(models.DateLayout)
		resp.Slot = conflict.Slot
		return http.StatusConflict, resp
	case errors.Is(err, database.ErrConcurrentModification):
		resp.Error = "conflict"
		resp.Code = "CONCURRENT_MODIFICATION"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrState):
		resp.Error = "invalid_state"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrGateway):
		resp.Error = "gateway_error"
		return http.StatusBadGateway, resp
	default:
		resp.Error = "internal_error"
		resp.Message = "internal server error"
		return http.StatusInternalServerError, resp
	}
}

func errorHandler(logger *zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := statusFor(err)
		if code >= http.StatusInternalServerError && code != http.StatusBadGateway {
			logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		}
		_ = c.JSON(code, resp)
	}
}
