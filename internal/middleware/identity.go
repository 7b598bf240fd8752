package middleware

// identity.go holds helpers shared across middleware files for reading the
// caller identity that JWTAuth stored in the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userID returns the authenticated caller's id as a string, or "guest"
// when the request carries no verified identity.
func userID(c echo.Context) string {
	if id, ok := c.Get("user_id").(uint64); ok && id > 0 {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
