package orgapi

import "time"

// Organization types. The set is closed.
const (
	TypeBrokerage      = "brokerage"
	TypeDispatchAgency = "dispatch_agency"
	TypeCarrier        = "carrier"
	TypeShipper        = "shipper"
)

// IsValidType reports whether t is one of the known organization types.
func IsValidType(t string) bool {
	switch t {
	case TypeBrokerage, TypeDispatchAgency, TypeCarrier, TypeShipper:
		return true
	}
	return false
}

// Organization is one tenant entity the caller can act within.
// Role and Permissions stay empty until the organization is activated and
// its membership has been resolved; they must not be read before that.
type Organization struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Subscription Subscription `json:"subscription"`
	Billing      Billing      `json:"billing"`
	Role         string       `json:"role,omitempty"`
	Permissions  []string     `json:"permissions,omitempty"`
}

// Subscription describes the organization's plan and seat allocation.
// Seat invariant: SeatsUsed + SeatsAvailable == SeatsTotal.
type Subscription struct {
	Plan            string    `json:"plan"`
	SeatsTotal      int       `json:"seats_total"`
	SeatsUsed       int       `json:"seats_used"`
	SeatsAvailable  int       `json:"seats_available"`
	BillingCycle    string    `json:"billing_cycle"`
	Price           float64   `json:"price"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

// Billing is the organization's billing contact block.
type Billing struct {
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	CustomerID   string `json:"customer_id"`
}

// Membership is the caller's resolved role and grant list within one
// organization.
type Membership struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
