package host

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned when the host has no order with the given id.
var ErrOrderNotFound = errors.New("host: order not found")

// ErrSubdistrictNotFound is returned when a shipping destination is unknown.
var ErrSubdistrictNotFound = errors.New("host: subdistrict not found")

// OrderStatus values used by the host platform.
type OrderStatus string

const (
	StatusOnHold     OrderStatus = "on-hold"
	StatusInProgress OrderStatus = "in-progress"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusRefunded   OrderStatus = "refunded"
	StatusCancelled  OrderStatus = "cancelled"
)

// ProductTypePhysical marks products that are shipped to the buyer.
const ProductTypePhysical = "physical"

// PaymentGateway is the gateway key stored on orders paid through this bridge.
const PaymentGateway = "chip-in"

// MetaChipInStatus is the order meta key holding the last gateway outcome.
const MetaChipInStatus = "chip-in.status"

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Price        decimal.Decimal `json:"price"`
	Subscription bool            `json:"subscription"`
}

// Physical reports whether the product requires shipping.
func (p Product) Physical() bool {
	return strings.EqualFold(strings.TrimSpace(p.Type), ProductTypePhysical)
}

type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Destination int64  `json:"destination"`
}

// ShippingInfo is the shipping section of an order's meta data.
type ShippingInfo struct {
	Receiver   string          `json:"receiver"`
	Phone      string          `json:"phone"`
	DistrictID int64           `json:"district_id"`
	Courier    string          `json:"courier,omitempty"`
	Service    string          `json:"service,omitempty"`
	Cost       decimal.Decimal `json:"cost"`
}

// ChipInMeta is stored under the "chip-in" key of the order meta.
type ChipInMeta struct {
	TransID   string `json:"trans_id,omitempty"`
	UniqueKey string `json:"unique_key,omitempty"`
	Method    string `json:"method,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Coupon is the coupon section of an order's meta data.
type Coupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

type Meta struct {
	ChipIn   *ChipInMeta    `json:"chip-in,omitempty"`
	Shipping *ShippingInfo  `json:"shipping_data,omitempty"`
	Coupon   *Coupon        `json:"coupon,omitempty"`
	Extra    map[string]any `json:"-"`
}

type Order struct {
	ID             int64           `json:"id"`
	Status         OrderStatus     `json:"status"`
	ProductID      int64           `json:"product_id"`
	Product        Product         `json:"product"`
	UserID         int64           `json:"user_id"`
	User           User            `json:"user"`
	Quantity       int             `json:"quantity"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Address        string          `json:"address"`
	PaymentGateway string          `json:"payment_gateway"`
	Meta           Meta            `json:"meta_data"`
}

// IDString is the order id as sent to the gateway.
func (o Order) IDString() string {
	return strconv.FormatInt(o.ID, 10)
}

// PaidViaChipIn reports whether the order was placed with this gateway.
func (o Order) PaidViaChipIn() bool {
	return o.PaymentGateway == PaymentGateway
}

// Fulfillment is either Physical or Digital.
type Fulfillment interface {
	isFulfillment()
}

// Physical orders ship to a receiver and carry a shipping cost.
type Physical struct {
	Shipping ShippingInfo
}

// Digital orders use the buyer's profile for recipient details.
type Digital struct{}

func (Physical) isFulfillment() {}
func (Digital) isFulfillment()  {}

// Fulfillment classifies the order. An order is physical only when the
// product is physical and shipping data was captured at checkout.
func (o Order) Fulfillment() Fulfillment {
	if o.Product.Physical() && o.Meta.Shipping != nil {
		return Physical{Shipping: *o.Meta.Shipping}
	}
	return Digital{}
}

// Subdistrict is a shipping destination used for recipient city and state.
type Subdistrict struct {
	ID          int64  `json:"id"`
	Province    string `json:"province"`
	Type        string `json:"type"`
	City        string `json:"city"`
	Subdistrict string `json:"subdistrict"`
}

// CityLabel joins the city type and name, e.g. "Kota Bandung".
func (s Subdistrict) CityLabel() string {
	return strings.TrimSpace(s.Type + " " + s.City)
}
