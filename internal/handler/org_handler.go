package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"org-service/internal/access"
	"org-service/internal/model"
	"org-service/internal/orgapi"
	"org-service/pkg/database"
	"org-service/pkg/jwtutil"
	"org-service/pkg/logger"
	"org-service/prometheus"
)

// CreateOrganization handles organization creation. The creator becomes the
// owner with the wildcard grant, and the new organization becomes their
// current one.
func CreateOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("create")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Parse request
	var req struct {
		Name         string             `json:"name"`
		Type         string             `json:"type"`
		Subscription model.Subscription `json:"subscription"`
		Billing      model.Billing      `json:"billing"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse organization creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		log.Error("Invalid organization data", zap.String("name", req.Name))
		prometheus.RecordAuthError("incomplete_org_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	if !orgapi.IsValidType(req.Type) {
		log.Error("Invalid organization type", zap.String("type", req.Type))
		prometheus.RecordAuthError("invalid_org_type")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be one of brokerage, dispatch_agency, carrier, shipper"})
	}

	// Seat counts must add up; derive the available count when omitted.
	if req.Subscription.SeatsAvailable == 0 && req.Subscription.SeatsTotal > 0 {
		req.Subscription.SeatsAvailable = req.Subscription.SeatsTotal - req.Subscription.SeatsUsed
	}
	if !req.Subscription.SeatsConsistent() {
		log.Error("Inconsistent seat counts",
			zap.Int("total", req.Subscription.SeatsTotal),
			zap.Int("used", req.Subscription.SeatsUsed),
			zap.Int("available", req.Subscription.SeatsAvailable))
		prometheus.RecordAuthError("invalid_seat_counts")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat counts are inconsistent"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	// Begin transaction
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		prometheus.RecordAuthError("database_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	org := model.Organization{
		Name:         req.Name,
		Type:         req.Type,
		OwnerID:      userID,
		Active:       true,
		Subscription: req.Subscription,
		Billing:      req.Billing,
	}

	if result := tx.Create(&org); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create organization", zap.Error(result.Error))
		prometheus.RecordAuthError("org_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "organization creation failed"})
	}

	// The creator's membership carries the owner role and the wildcard
	membership := model.UserOrganization{
		UserID:         userID,
		OrganizationID: org.ID,
		Role:           access.RoleOwner,
		Permissions:    []string{access.Wildcard},
		IsDefault:      true,
		Active:         true,
	}

	if result := tx.Create(&membership); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create user-organization association", zap.Error(result.Error))
		prometheus.RecordAuthError("org_association_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "organization association failed"})
	}

	if result := tx.Model(&model.User{}).Where("id = ?", userID).Update("current_org_id", org.ID); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to update user's current organization", zap.Error(result.Error))
		prometheus.RecordAuthError("user_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user update failed"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		prometheus.RecordAuthError("transaction_commit_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction commit failed"})
	}

	log.Info("Organization created",
		zap.String("name", org.Name),
		zap.String("id", org.ID),
		zap.String("owner_id", org.OwnerID))

	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"organization": org.API(),
	})
}

// ListUserOrganizations returns every organization the authenticated user
// belongs to, in membership creation order.
func ListUserOrganizations(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("list")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var memberships []model.UserOrganization
	result := database.GetDB().Preload("Organization").
		Where("user_id = ? AND active = ?", userID, true).
		Order("id").
		Find(&memberships)
	if result.Error != nil {
		log.Error("Failed to retrieve user's organizations", zap.Error(result.Error))
		prometheus.RecordAuthError("org_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to retrieve organizations"})
	}

	organizations := make([]orgapi.Organization, 0, len(memberships))
	for _, m := range memberships {
		organizations = append(organizations, m.Organization.API())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"organizations": organizations,
	})
}

// GetOrganization retrieves one organization's details for a member.
func GetOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("access")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	orgID := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())

	var org model.Organization
	if result := database.GetDB().First(&org, "id = ?", orgID); result.Error != nil {
		log.Error("Organization not found", zap.String("id", orgID), zap.Error(result.Error))
		prometheus.RecordAuthError("org_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
	}

	var membership model.UserOrganization
	result := database.GetDB().Where("user_id = ? AND organization_id = ?", userID, orgID).First(&membership)
	if result.Error != nil && org.OwnerID != userID {
		log.Warn("Unauthorized organization access attempt",
			zap.String("requesting_user_id", userID),
			zap.String("organization_id", orgID))
		prometheus.RecordAuthError("org_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, org.API())
}

// GetMembership resolves the caller's role and permission grants within one
// organization. Memberships with no stored grants fall back to the role's
// default catalog.
func GetMembership(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("membership")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_membership_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "authentication required"})
	}

	orgID := c.Param("id")

	defer prometheus.TrackDBOperation("query")(time.Now())

	var membership model.UserOrganization
	result := database.GetDB().Where("user_id = ? AND organization_id = ? AND active = ?", userID, orgID, true).First(&membership)
	if result.Error != nil {
		log.Warn("Membership not found",
			zap.String("user_id", userID),
			zap.String("organization_id", orgID))
		prometheus.RecordAuthError("membership_not_found")
		return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": "not a member of this organization"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"role":        membership.Role,
		"permissions": membershipPermissions(&membership),
	})
}

// SetCurrentOrganization records the caller's current organization. This is
// the server-side confirmation half of an organization switch: clients only
// flip their local session after this succeeds.
func SetCurrentOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("set_current")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_set_current")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "authentication required"})
	}

	// Parse request
	var req struct {
		OrganizationID string `json:"organization_id"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse set current organization request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}

	if req.OrganizationID == "" {
		log.Error("Missing organization ID")
		prometheus.RecordAuthError("invalid_org_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "organization_id is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	// Begin transaction
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		prometheus.RecordAuthError("database_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "database error"})
	}

	// Verify the user has access to this organization
	var membership model.UserOrganization
	result := tx.Where("user_id = ? AND organization_id = ? AND active = ?", userID, req.OrganizationID, true).First(&membership)
	if result.Error != nil {
		tx.Rollback()
		log.Warn("Unauthorized current organization change attempt",
			zap.String("user_id", userID),
			zap.String("organization_id", req.OrganizationID))
		prometheus.RecordAuthError("org_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": "access denied to requested organization"})
	}

	// Flip the default membership to the requested organization
	if err := tx.Model(&model.UserOrganization{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to update user-organization associations", zap.Error(err))
		prometheus.RecordAuthError("org_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to update organization associations"})
	}

	membership.IsDefault = true
	if err := tx.Save(&membership).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to set current organization", zap.Error(err))
		prometheus.RecordAuthError("org_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to set current organization"})
	}

	if err := tx.Model(&model.User{}).Where("id = ?", userID).Update("current_org_id", req.OrganizationID).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to update user's current organization", zap.Error(err))
		prometheus.RecordAuthError("user_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "failed to update user"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		prometheus.RecordAuthError("transaction_commit_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "transaction commit failed"})
	}

	log.Info("Set current organization for user",
		zap.String("user_id", userID),
		zap.String("organization_id", req.OrganizationID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// SwitchOrganization generates a new token with a different organization
// context after verifying membership.
func SwitchOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("switch")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_switch")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	email, ok := c.Get("email").(string)
	if !ok {
		log.Error("Failed to get email from context")
		prometheus.RecordAuthError("context_missing_email")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "email missing from context"})
	}

	// Parse request
	var req struct {
		OrganizationID string `json:"organization_id"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse organization switch request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.OrganizationID == "" {
		log.Error("Missing organization ID")
		prometheus.RecordAuthError("invalid_org_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Verify the user has access to this organization
	var membership model.UserOrganization
	result := database.GetDB().Where("user_id = ? AND organization_id = ? AND active = ?", userID, req.OrganizationID, true).First(&membership)
	if result.Error != nil {
		log.Warn("Unauthorized organization switch attempt",
			zap.String("user_id", userID),
			zap.String("organization_id", req.OrganizationID))
		prometheus.RecordAuthError("org_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested organization"})
	}

	var org model.Organization
	if result := database.GetDB().Select("name").First(&org, "id = ?", req.OrganizationID); result.Error != nil {
		log.Error("Organization not found", zap.String("id", req.OrganizationID), zap.Error(result.Error))
		prometheus.RecordAuthError("org_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
	}

	perms := membershipPermissions(&membership)
	token, err := jwtutil.GenerateTokenWithOrganization(email, userID, req.OrganizationID, org.Name, membership.Role, perms)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	log.Info("User switched organization",
		zap.String("email", email),
		zap.String("user_id", userID),
		zap.String("organization_id", req.OrganizationID))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"organization": map[string]interface{}{
			"id":          req.OrganizationID,
			"name":        org.Name,
			"role":        membership.Role,
			"permissions": perms,
		},
	})
}

// AddUserToOrganization adds a user to an organization. Requires an admin or
// owner membership, validated through the shared role rules.
func AddUserToOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("add_user")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_user_add")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Parse request
	var req struct {
		OrganizationID string   `json:"organization_id"`
		UserEmail      string   `json:"user_email"`
		Role           string   `json:"role,omitempty"`
		Permissions    []string `json:"permissions,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse add user request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.OrganizationID == "" || req.UserEmail == "" {
		log.Error("Invalid request data",
			zap.String("organization_id", req.OrganizationID),
			zap.String("user_email", req.UserEmail))
		prometheus.RecordAuthError("incomplete_org_user_add")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization_id and user_email are required"})
	}

	// Default role if not provided
	if req.Role == "" {
		req.Role = access.RoleStaff
	}
	if !access.IsValidRole(req.Role) {
		log.Error("Invalid role", zap.String("role", req.Role))
		prometheus.RecordAuthError("invalid_role")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Verify the requesting user may manage members of this organization
	var requester model.UserOrganization
	result := database.GetDB().Where("user_id = ? AND organization_id = ? AND active = ?", userID, req.OrganizationID, true).First(&requester)
	if result.Error != nil || !access.RoleSatisfies(requester.Role, []string{access.RoleAdmin}) {
		log.Warn("Unauthorized attempt to add user to organization",
			zap.String("requesting_user_id", userID),
			zap.String("organization_id", req.OrganizationID))
		prometheus.RecordAuthError("org_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	// Find the user by email
	var user model.User
	if result := database.GetDB().Where("email = ?", req.UserEmail).First(&user); result.Error != nil {
		log.Error("User not found", zap.String("email", req.UserEmail))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	// Check if user is already in the organization
	var existing model.UserOrganization
	result = database.GetDB().Where("user_id = ? AND organization_id = ?", user.ID, req.OrganizationID).First(&existing)
	if result.Error == nil {
		// Already a member; update role and grants if different
		existing.Role = req.Role
		existing.Permissions = req.Permissions
		if err := database.GetDB().Save(&existing).Error; err != nil {
			log.Error("Failed to update user role in organization", zap.Error(err))
			prometheus.RecordAuthError("org_user_update_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update user role"})
		}
		log.Info("Updated user role in organization",
			zap.String("organization_id", req.OrganizationID),
			zap.String("user_email", req.UserEmail),
			zap.String("role", req.Role))

		return c.JSON(http.StatusOK, echo.Map{
			"message":    "User role updated in organization",
			"membership": existing,
		})
	}

	membership := model.UserOrganization{
		UserID:         user.ID,
		OrganizationID: req.OrganizationID,
		Role:           req.Role,
		Permissions:    req.Permissions,
		IsDefault:      false,
		Active:         true,
	}

	if err := database.GetDB().Create(&membership).Error; err != nil {
		log.Error("Failed to add user to organization", zap.Error(err))
		prometheus.RecordAuthError("org_user_add_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add user to organization"})
	}

	log.Info("Added user to organization",
		zap.String("organization_id", req.OrganizationID),
		zap.String("user_email", req.UserEmail),
		zap.String("role", req.Role))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "User added to organization successfully",
		"membership": membership,
	})
}

// RemoveUserFromOrganization removes a user from an organization. The
// organization owner cannot be removed.
func RemoveUserFromOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("remove_user")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_org_user_remove")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	orgID := c.Param("org_id")
	targetUserID := c.Param("user_id")

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Verify the requesting user may manage members of this organization
	var requester model.UserOrganization
	result := database.GetDB().Where("user_id = ? AND organization_id = ? AND active = ?", userID, orgID, true).First(&requester)
	if result.Error != nil || !access.RoleSatisfies(requester.Role, []string{access.RoleAdmin}) {
		log.Warn("Unauthorized attempt to remove user from organization",
			zap.String("requesting_user_id", userID),
			zap.String("organization_id", orgID))
		prometheus.RecordAuthError("org_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var org model.Organization
	if result := database.GetDB().First(&org, "id = ?", orgID); result.Error != nil {
		log.Error("Organization not found", zap.String("id", orgID))
		prometheus.RecordAuthError("org_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
	}

	if org.OwnerID == targetUserID {
		log.Warn("Attempted to remove organization owner",
			zap.String("organization_id", orgID),
			zap.String("owner_id", targetUserID))
		prometheus.RecordAuthError("org_owner_removal_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove organization owner"})
	}

	result = database.GetDB().Where("user_id = ? AND organization_id = ?", targetUserID, orgID).Delete(&model.UserOrganization{})
	if result.Error != nil {
		log.Error("Failed to remove user from organization", zap.Error(result.Error))
		prometheus.RecordAuthError("org_user_remove_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove user from organization"})
	}

	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found in this organization"})
	}

	// If this was the removed user's current organization, point them at
	// another membership or clear the reference.
	var user model.User
	if result := database.GetDB().First(&user, "id = ?", targetUserID); result.Error == nil {
		if user.CurrentOrgID != nil && *user.CurrentOrgID == orgID {
			var other model.UserOrganization
			if result := database.GetDB().Where("user_id = ? AND organization_id != ?", targetUserID, orgID).First(&other); result.Error == nil {
				database.GetDB().Model(&user).Update("current_org_id", other.OrganizationID)
			} else {
				database.GetDB().Model(&user).Update("current_org_id", nil)
			}
		}
	}

	log.Info("Removed user from organization",
		zap.String("organization_id", orgID),
		zap.String("user_id", targetUserID))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "User removed from organization successfully",
	})
}
