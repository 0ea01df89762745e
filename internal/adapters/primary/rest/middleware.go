package rest

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
)

const limiterTimeout = 200 * time.Millisecond

var errTooManyRequests = domain.New(domain.KindTooManyRequests, "Too many requests, try again later.")

// requestLogger emits one slog record per request.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Debug("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("request complete", attrs...)
			return nil
		},
	})
}

// rateLimit applies the limiter per client IP and fails open on limiter errors.
func rateLimit(l Limiter, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), limiterTimeout)
			defer cancel()

			allowed, err := l.Allow(ctx, c.RealIP())
			if err != nil {
				logger.Warn("auth limiter error, letting request through", "error", err)
				return next(c)
			}
			if !allowed {
				return errTooManyRequests
			}
			return next(c)
		}
	}
}
