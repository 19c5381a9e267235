package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func staffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Staff {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// selfOrStaffMiddleware lets callers read their own records, and staff read anyone's.
// Others get a 404 so aliases cannot be probed.
func selfOrStaffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.Staff || strings.EqualFold(strings.TrimSpace(ctx.Param("alias")), claims.Alias) {
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}
