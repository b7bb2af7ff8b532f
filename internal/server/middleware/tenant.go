package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const TenantHeader = "X-Tenant-ID"

const maxTenantIDLength = 128

// TenantMiddleware scopes the request to the tenant named in the
// X-Tenant-ID header and rejects requests without one.
func TenantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := strings.TrimSpace(c.Request().Header.Get(TenantHeader))
		if tenantID == "" || len(tenantID) > maxTenantIDLength {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing or invalid " + TenantHeader + " header"})
		}
		c.(*AppContext).TenantID = tenantID
		return next(c)
	}
}
