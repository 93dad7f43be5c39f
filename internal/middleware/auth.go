package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"org-service/pkg/jwtutil"
	"org-service/pkg/logger"
	"org-service/prometheus"
)

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store user info in context for later use
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)

		// Store organization context if the token carries one
		if claims.OrgID != "" {
			c.Set("org_id", claims.OrgID)
			c.Set("org_name", claims.OrgName)
			c.Set("user_role", claims.Role)
			c.Set("permissions", claims.Permissions)

			// Forward the organization context to downstream services
			c.Request().Header.Set("X-Org-ID", claims.OrgID)
			if claims.OrgName != "" {
				c.Request().Header.Set("X-Org-Name", claims.OrgName)
			}
			if claims.Role != "" {
				c.Request().Header.Set("X-User-Role", claims.Role)
			}

			log.Debug("Request authenticated with organization context",
				zap.String("org_id", claims.OrgID),
				zap.String("org_name", claims.OrgName),
				zap.String("role", claims.Role))
		}

		return next(c)
	}
}
