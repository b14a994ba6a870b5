package echoapi

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
)

const bearerPrefix = "Bearer "

// apiKeyMiddleware only lets through requests bearing the admin key: `Authorization: Bearer <key>`.
func apiKeyMiddleware(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if adminKey == "" {
				return errMissingAdminKey
			}
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, bearerPrefix) {
				return errUnauthorized
			}
			key := strings.TrimSpace(auth[len(bearerPrefix):])
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}
