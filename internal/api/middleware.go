package api

import (
	"strconv"
	"strings"
	"time"

	"staybook/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const requestIDHeader = "X-Request-ID"

// accessLog assigns a request id and writes one access line per request.
func accessLog(logger *zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now().UTC()
			r := c.Request()

			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, requestID)

			err := next(c)
			if err != nil {
				// статус должен попасть в лог, поэтому ошибку отдаем сразу
				c.Error(err)
			}

			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.IncHTTP(route, strconv.Itoa(status))

			event := logger.Info()
			if status >= 500 {
				event = logger.Warn()
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				event = event.Str("trace_id", sc.TraceID().String())
			}
			event.
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Str("user_agent", r.UserAgent()).
				Dur("latency", time.Since(start)).
				Msg("http request")

			return nil
		}
	}
}
