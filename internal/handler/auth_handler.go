package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"org-service/internal/access"
	"org-service/internal/model"
	"org-service/pkg/database"
	"org-service/pkg/jwtutil"
	"org-service/pkg/logger"
	"org-service/prometheus"
)

func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	// Parse request
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		OrganizationID string `json:"organization_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	// Find user in database - track DB operation duration
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		log.Error("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Resolve the organization context: an explicit request wins, otherwise
	// the user's recorded current organization, otherwise none.
	orgID := req.OrganizationID
	if orgID == "" && user.CurrentOrgID != nil {
		orgID = *user.CurrentOrgID
	}

	var token string
	var err error
	var orgPayload echo.Map

	if orgID != "" {
		var membership model.UserOrganization
		result := database.GetDB().Where("user_id = ? AND organization_id = ? AND active = ?", user.ID, orgID, true).First(&membership)
		if result.Error != nil {
			log.Error("User does not have access to the specified organization",
				zap.String("email", req.Email),
				zap.String("organization_id", orgID))
			prometheus.RecordAuthError("org_access_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to the specified organization"})
		}

		var org model.Organization
		database.GetDB().Select("name").First(&org, "id = ?", orgID)

		perms := membershipPermissions(&membership)
		token, err = jwtutil.GenerateTokenWithOrganization(user.Email, user.ID, orgID, org.Name, membership.Role, perms)
		orgPayload = echo.Map{
			"id":          orgID,
			"name":        org.Name,
			"role":        membership.Role,
			"permissions": perms,
		}
	} else {
		token, err = jwtutil.GenerateToken(user.Email, user.ID)
	}

	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	if orgPayload != nil {
		log.Info("User logged in with organization context",
			zap.String("email", user.Email),
			zap.String("organization_id", orgID))
	} else {
		log.Info("User logged in", zap.String("email", user.Email))
	}

	response := echo.Map{
		"token": token,
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
	}
	if orgPayload != nil {
		response["organization"] = orgPayload
	}

	return c.JSON(http.StatusOK, response)
}

func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	// Parse request
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		log.Error("Invalid registration data",
			zap.String("email", req.Email),
			zap.Bool("password_provided", req.Password != ""))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	// Check if user already exists - track DB query
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingUser model.User
	result := database.GetDB().Where("email = ?", req.Email).First(&existingUser)
	if result.Error == nil {
		log.Error("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	// Create new user
	user := model.User{
		Email:    req.Email,
		Password: string(hashedPassword),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&user); result.Error != nil {
		log.Error("Failed to create user", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("User registered", zap.String("email", user.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User registered successfully",
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// membershipPermissions returns the membership's explicit grants, falling
// back to the role's default catalog when none were stored.
func membershipPermissions(m *model.UserOrganization) []string {
	if len(m.Permissions) > 0 {
		return []string(m.Permissions)
	}
	return access.DefaultPermissions(m.Role)
}

func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
