package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"org-service/pkg/logger"
	"org-service/prometheus"
)

// RequireOrganizationContext rejects requests whose token carries no active
// organization. Routes behind it can assume org_id and user_role are set.
func RequireOrganizationContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		orgID, ok := c.Get("org_id").(string)
		if !ok || orgID == "" {
			logger.FromContext(c).Warn("Request missing organization context")
			prometheus.RecordAuthError("missing_org_context")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "organization context required"})
		}
		return next(c)
	}
}
