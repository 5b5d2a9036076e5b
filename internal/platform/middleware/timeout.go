package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context and answers 504 if
// the handler has not returned by then.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				if errors.Is(err, context.DeadlineExceeded) {
					return gatewayTimeout(c)
				}
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeout(c)
				}
				return ctx.Err()
			}
		}
	}
}

// gatewayTimeout answers 504 unless the handler already started writing
// its own response.
func gatewayTimeout(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
}
