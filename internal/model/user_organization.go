package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserOrganization represents the association between users and organizations.
// This enables multi-tenancy by allowing users to belong to multiple
// organizations, each with its own role and permission grants.
type UserOrganization struct {
	ID             uint                        `json:"id" gorm:"primaryKey"`
	UserID         string                      `json:"user_id" gorm:"type:uuid;index;not null"`
	OrganizationID string                      `json:"organization_id" gorm:"type:uuid;index;not null"`
	Role           string                      `json:"role" gorm:"type:varchar(50);not null;default:'staff'"`
	Permissions    datatypes.JSONSlice[string] `json:"permissions"` // explicit grants; empty falls back to the role's defaults
	IsDefault      bool                        `json:"is_default" gorm:"default:false"`
	Active         bool                        `json:"active" gorm:"default:true"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
	DeletedAt      gorm.DeletedAt              `json:"-" gorm:"index"`

	// Relations
	User         User         `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Organization Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
}
