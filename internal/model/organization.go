package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"org-service/internal/orgapi"
)

// Organization represents one tenant entity users act within: a brokerage,
// dispatch agency, carrier or shipper.
type Organization struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	Type      string         `json:"type" gorm:"type:varchar(32);not null"`
	OwnerID   string         `json:"owner_id" gorm:"type:uuid;index;not null"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Subscription Subscription `json:"subscription" gorm:"embedded;embeddedPrefix:subscription_"`
	Billing      Billing      `json:"billing" gorm:"embedded;embeddedPrefix:billing_"`
}

// Subscription holds the plan tier and seat allocation.
// Invariant: SeatsUsed + SeatsAvailable == SeatsTotal and SeatsUsed >= 0.
type Subscription struct {
	Plan            string    `json:"plan" gorm:"type:varchar(50)"`
	SeatsTotal      int       `json:"seats_total"`
	SeatsUsed       int       `json:"seats_used"`
	SeatsAvailable  int       `json:"seats_available"`
	BillingCycle    string    `json:"billing_cycle" gorm:"type:varchar(20)"`
	Price           float64   `json:"price"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

// SeatsConsistent reports whether the seat counts satisfy the invariant.
func (s Subscription) SeatsConsistent() bool {
	return s.SeatsUsed >= 0 && s.SeatsUsed+s.SeatsAvailable == s.SeatsTotal
}

// Billing is the organization's billing contact block.
type Billing struct {
	ContactName  string `json:"contact_name" gorm:"type:varchar(100)"`
	ContactEmail string `json:"contact_email" gorm:"type:varchar(100)"`
	CustomerID   string `json:"customer_id" gorm:"type:varchar(100)"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// API converts the stored organization to its wire representation. Role and
// permissions are left unset; they belong to the membership endpoint.
func (o *Organization) API() orgapi.Organization {
	return orgapi.Organization{
		ID:   o.ID,
		Name: o.Name,
		Type: o.Type,
		Subscription: orgapi.Subscription{
			Plan:            o.Subscription.Plan,
			SeatsTotal:      o.Subscription.SeatsTotal,
			SeatsUsed:       o.Subscription.SeatsUsed,
			SeatsAvailable:  o.Subscription.SeatsAvailable,
			BillingCycle:    o.Subscription.BillingCycle,
			Price:           o.Subscription.Price,
			NextBillingDate: o.Subscription.NextBillingDate,
		},
		Billing: orgapi.Billing{
			ContactName:  o.Billing.ContactName,
			ContactEmail: o.Billing.ContactEmail,
			CustomerID:   o.Billing.CustomerID,
		},
	}
}
