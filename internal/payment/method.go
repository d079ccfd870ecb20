package payment

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sejoli-chipin/internal/common"
	"github.com/noah-isme/sejoli-chipin/internal/host"
)

// MethodID identifies this payment method to the host.
const MethodID = "chip-in"

// Notification media supported by Instruction.
const (
	MediaEmail    = "email"
	MediaSMS      = "sms"
	MediaWhatsApp = "whatsapp"
)

//go:embed templates/*
var templateFS embed.FS

var (
	emailTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/email.html"))
	textTemplates = map[string]*texttemplate.Template{
		MediaSMS:      texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/sms.txt")),
		MediaWhatsApp: texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/whatsapp.txt")),
	}
)

// Option is a payment choice shown at checkout.
type Option struct {
	Label string `json:"label"`
	Image string `json:"image"`
}

// OrderData is the part of a new order the meta hook needs.
type OrderData struct {
	UserID     int64           `json:"user_id"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Method is the host-facing side of the Chip In payment method.
type Method struct {
	Active       bool
	AssetBaseURL string
	SiteURL      string
	Currency     string
	// Intn returns a value in [0, n); defaults to math/rand.
	Intn func(n int) int
}

// Options adds the Chip In entry to the host's payment options when active.
func (m Method) Options(existing map[string]Option) map[string]Option {
	out := make(map[string]Option, len(existing)+1)
	for k, v := range existing {
		out[k] = v
	}
	if !m.Active {
		return out
	}
	// the host expects ":::" between gateway and method
	out[MethodID+":::"+MethodID] = Option{
		Label: "Transaksi via Chip_in",
		Image: strings.TrimRight(m.AssetBaseURL, "/") + "/img/chip-in-logo.png",
	}
	return out
}

// AdjustPrice returns the order price unchanged; Chip In adds no fee.
func (m Method) AdjustPrice(price decimal.Decimal) decimal.Decimal {
	return price
}

// MetaData records the chip-in block on a new order's meta.
func (m Method) MetaData(meta map[string]any, od OrderData, subtype string) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	intn := m.Intn
	if intn == nil {
		intn = rand.IntN
	}
	meta[MethodID] = host.ChipInMeta{
		TransID:   common.MD5Prefix(strconv.FormatInt(od.UserID, 10)+od.GrandTotal.String(), 20),
		UniqueKey: common.MD5Prefix(strconv.Itoa(intn(1001)), 16),
		Method:    subtype,
	}
	return meta
}

// PaymentInfo is the payment summary stored on the order.
func (m Method) PaymentInfo() map[string]string {
	return map[string]string{"bank": MethodID}
}

type instructionData struct {
	OrderID  string
	Total    string
	Currency string
	PayURL   string
}

// Instruction renders payment instructions for a notification medium. Orders
// that are not awaiting payment get no instruction.
func (m Method) Instruction(o host.Order, media string) (string, error) {
	if o.Status != host.StatusOnHold {
		return "", nil
	}
	data := instructionData{
		OrderID:  o.IDString(),
		Total:    o.GrandTotal.StringFixed(2),
		Currency: m.Currency,
		PayURL:   strings.TrimRight(m.SiteURL, "/") + "/checkout/thank-you?" + url.Values{"order_id": {o.IDString()}}.Encode(),
	}
	var buf bytes.Buffer
	switch media {
	case "", MediaEmail:
		if err := emailTemplate.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("payment: render email instruction: %w", err)
		}
	default:
		tpl, ok := textTemplates[media]
		if !ok {
			return "", fmt.Errorf("payment: unsupported media %q", media)
		}
		if err := tpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("payment: render %s instruction: %w", media, err)
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// SimpleInstruction is the one-line variant used in compact notifications.
func (m Method) SimpleInstruction(o host.Order) string {
	if o.Status != host.StatusOnHold {
		return ""
	}
	return "via Chip In"
}
