package chipin

import "strings"

// Mode selects which credential set and environment are used.
type Mode string

const (
	ModeSandbox Mode = "sandbox"
	ModeLive    Mode = "live"
)

// Credentials is the resolved gateway configuration for a single mode.
type Credentials struct {
	Mode             Mode
	BrandID          string
	SecretKey        string
	Endpoint         string
	WebhookPublicKey string
}

// Configured reports whether purchases can be created with these credentials.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.BrandID) != "" && strings.TrimSpace(c.SecretKey) != ""
}

func (c Credentials) url(path string) string {
	base := strings.TrimSpace(c.Endpoint)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimLeft(path, "/")
}

// Purchase statuses reported by the provider that the bridge reacts to.
const (
	PurchaseStatusPaid      = "paid"
	PurchaseStatusCancelled = "cancelled"
	PurchaseStatusExpired   = "expired"
	PurchaseStatusError     = "error"
)

// ClientDetails describes the paying customer.
type ClientDetails struct {
	Email                 string `json:"email" validate:"omitempty,email"`
	Phone                 string `json:"phone,omitempty"`
	FullName              string `json:"full_name,omitempty"`
	StreetAddress         string `json:"street_address,omitempty"`
	City                  string `json:"city,omitempty"`
	State                 string `json:"state,omitempty"`
	ShippingStreetAddress string `json:"shipping_street_address,omitempty"`
	ShippingCity          string `json:"shipping_city,omitempty"`
	ShippingState         string `json:"shipping_state,omitempty"`
}

// Product is a purchase line item. Price and Discount are in minor units.
type Product struct {
	Name     string `json:"name" validate:"required"`
	Quantity string `json:"quantity" validate:"required"`
	Price    int64  `json:"price" validate:"gte=0"`
	Discount int64  `json:"discount,omitempty" validate:"gte=0"`
}

// PurchaseDetails carries the amounts and line items of a purchase.
type PurchaseDetails struct {
	Currency         string    `json:"currency" validate:"required,len=3"`
	Products         []Product `json:"products" validate:"required,min=1,dive"`
	SubtotalOverride *int64    `json:"subtotal_override,omitempty"`
	TotalOverride    *int64    `json:"total_override,omitempty" validate:"omitempty,gte=0"`
	DueStrict        bool      `json:"due_strict"`
	Timezone         string    `json:"timezone,omitempty"`
	Total            int64     `json:"total,omitempty"`
}

// Purchase is both the creation payload and the provider response.
type Purchase struct {
	ID              string          `json:"id,omitempty"`
	BrandID         string          `json:"brand_id" validate:"required"`
	Client          ClientDetails   `json:"client"`
	Purchase        PurchaseDetails `json:"purchase"`
	Reference       string          `json:"reference,omitempty"`
	Platform        string          `json:"platform,omitempty"`
	CreatorAgent    string          `json:"creator_agent,omitempty"`
	SendReceipt     bool            `json:"send_receipt"`
	Due             int64           `json:"due,omitempty"`
	SuccessRedirect string          `json:"success_redirect,omitempty" validate:"omitempty,url"`
	FailureRedirect string          `json:"failure_redirect,omitempty" validate:"omitempty,url"`
	CancelRedirect  string          `json:"cancel_redirect,omitempty" validate:"omitempty,url"`
	SuccessCallback string          `json:"success_callback,omitempty" validate:"omitempty,url"`
	Status          string          `json:"status,omitempty"`
	CheckoutURL     string          `json:"checkout_url,omitempty"`
	InvoiceURL      string          `json:"invoice_url,omitempty"`
	IsTest          bool            `json:"is_test,omitempty"`
	CreatedOn       int64           `json:"created_on,omitempty"`
}

// Event is the envelope of a signed webhook delivery. Purchase webhooks carry
// the purchase fields at the top level.
type Event struct {
	EventType string `json:"event_type"`
	Purchase
}
