package checkout

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

const (
	creatorAgent    = "Sejoli"
	platform        = "web"
	defaultTimeZone = "Asia/Kuala_Lumpur"
	defaultCurrency = "MYR"
	defaultDueMins  = 60
)

var hundred = decimal.NewFromInt(100)

// Options carries the host and gateway settings used to build purchases.
type Options struct {
	SiteURL     string
	Currency    string
	TimeZone    string
	DueStrict   bool
	DueMinutes  int
	SendReceipt bool
}

// ToMinor converts a major-unit amount to minor units, rounding half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// PaymentAmount is the whole-unit amount charged for the order. Shipping is
// excluded for physical orders; fractions are truncated.
func PaymentAmount(o host.Order) decimal.Decimal {
	total := o.GrandTotal
	if f, ok := o.Fulfillment().(host.Physical); ok {
		total = total.Sub(f.Shipping.Cost)
	}
	return total.Truncate(0)
}

// UnitPrice is the per-item product price in minor units.
func UnitPrice(price decimal.Decimal, qty int) int64 {
	if qty <= 0 {
		qty = 1
	}
	return price.Mul(hundred).Div(decimal.NewFromInt(int64(qty))).Round(0).IntPart()
}

// SiteLink joins path onto the site URL and appends query.
func SiteLink(site, path string, query url.Values) string {
	link := strings.TrimRight(site, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}

// RedirectURL is the browser return URL for a purchase outcome.
func RedirectURL(site string, orderID int64, success bool) string {
	flag := "0"
	if success {
		flag = "1"
	}
	return SiteLink(site, "chip-in/redirect", url.Values{"order_id": {strconv.FormatInt(orderID, 10)}, "success": {flag}})
}

// ThankYouURL is the host thank-you page for an order.
func ThankYouURL(site string, orderID int64) string {
	return SiteLink(site, "checkout/thank-you", url.Values{"order_id": {strconv.FormatInt(orderID, 10)}})
}

// recipient gathers client details according to the order's fulfillment.
func (s *Service) recipient(ctx context.Context, o host.Order) (chipin.ClientDetails, error) {
	client := chipin.ClientDetails{Email: o.User.Email}
	var destination int64
	switch f := o.Fulfillment().(type) {
	case host.Physical:
		client.FullName = f.Shipping.Receiver
		client.Phone = f.Shipping.Phone
		client.StreetAddress = o.Address
		destination = f.Shipping.DistrictID
	case host.Digital:
		client.FullName = o.User.DisplayName
		client.Phone = o.User.Phone
		client.StreetAddress = o.User.Address
		destination = o.User.Destination
	}
	if destination > 0 {
		sd, err := s.Orders.GetSubdistrict(ctx, destination)
		switch {
		case err == nil:
			client.City = sd.CityLabel()
			client.State = sd.Province
		case errors.Is(err, host.ErrSubdistrictNotFound):
			s.Logger.Warn().Int64("order_id", o.ID).Int64("district_id", destination).Msg("chipin_subdistrict_missing")
		default:
			return chipin.ClientDetails{}, err
		}
	}
	client.ShippingStreetAddress = client.StreetAddress
	client.ShippingCity = client.City
	client.ShippingState = client.State
	return client, nil
}

// BuildPurchase assembles the purchase payload for an order.
func (s *Service) BuildPurchase(ctx context.Context, o host.Order) (chipin.Purchase, error) {
	client, err := s.recipient(ctx, o)
	if err != nil {
		return chipin.Purchase{}, err
	}
	qty := o.Quantity
	if qty <= 0 {
		qty = 1
	}
	product := chipin.Product{
		Name:     o.Product.Name,
		Quantity: strconv.Itoa(qty),
		Price:    UnitPrice(o.Product.Price, qty),
	}
	if o.Meta.Coupon != nil && o.Meta.Coupon.Discount.IsPositive() {
		product.Discount = ToMinor(o.Meta.Coupon.Discount)
	}
	total := ToMinor(PaymentAmount(o))

	opts := s.Options
	details := chipin.PurchaseDetails{
		Currency:         valueOr(opts.Currency, defaultCurrency),
		Products:         []chipin.Product{product},
		SubtotalOverride: &total,
		TotalOverride:    &total,
		DueStrict:        opts.DueStrict,
		Timezone:         valueOr(opts.TimeZone, defaultTimeZone),
	}
	p := chipin.Purchase{
		Client:          client,
		Purchase:        details,
		Reference:       o.IDString(),
		Platform:        platform,
		CreatorAgent:    creatorAgent,
		SendReceipt:     opts.SendReceipt,
		SuccessRedirect: RedirectURL(opts.SiteURL, o.ID, true),
		FailureRedirect: RedirectURL(opts.SiteURL, o.ID, false),
		CancelRedirect:  strings.TrimRight(opts.SiteURL, "/"),
		SuccessCallback: SiteLink(opts.SiteURL, "chip-in/callback", nil),
	}
	if opts.DueStrict {
		p.Due = s.dueAt()
	}
	return p, nil
}

func (s *Service) dueAt() int64 {
	minutes := s.Options.DueMinutes
	if minutes <= 0 {
		minutes = defaultDueMins
	}
	return s.now().Add(time.Duration(minutes) * time.Minute).Unix()
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
