package transaction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/sejoli-chipin/internal/chipin"
)

// DetailVersion is the schema version written by EncodeDetail.
const DetailVersion = 1

// Detail is the persisted snapshot of the last gateway response for an order.
type Detail struct {
	Version     int             `json:"version"`
	PurchaseID  string          `json:"purchase_id,omitempty"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	InvoiceURL  string          `json:"invoice_url,omitempty"`
	Status      string          `json:"status,omitempty"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
}

// DetailFromPurchase snapshots a provider purchase, keeping the full payload.
func DetailFromPurchase(p chipin.Purchase) (Detail, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Detail{}, fmt.Errorf("transaction: encode purchase: %w", err)
	}
	return Detail{
		Version:     DetailVersion,
		PurchaseID:  p.ID,
		CheckoutURL: p.CheckoutURL,
		InvoiceURL:  p.InvoiceURL,
		Status:      p.Status,
		RawPayload:  raw,
	}, nil
}

// EncodeDetail serialises d, stamping the current version.
func EncodeDetail(d Detail) ([]byte, error) {
	d.Version = DetailVersion
	return json.Marshal(d)
}

// DecodeDetail parses a stored detail blob. Unversioned blobs are treated as a
// raw purchase object and their URLs lifted into the structured fields.
func DecodeDetail(data []byte) (Detail, error) {
	if len(data) == 0 {
		return Detail{}, nil
	}
	var d Detail
	if err := json.Unmarshal(data, &d); err != nil {
		return Detail{}, fmt.Errorf("transaction: decode detail: %w", err)
	}
	if d.Version > 0 {
		return d, nil
	}
	var p chipin.Purchase
	if err := json.Unmarshal(data, &p); err != nil {
		return Detail{}, fmt.Errorf("transaction: decode legacy detail: %w", err)
	}
	return Detail{
		PurchaseID:  p.ID,
		CheckoutURL: p.CheckoutURL,
		InvoiceURL:  p.InvoiceURL,
		Status:      p.Status,
		RawPayload:  append(json.RawMessage(nil), data...),
	}, nil
}

// HasCheckoutURL reports whether the snapshot can be reused for redirection.
func (d Detail) HasCheckoutURL() bool {
	return strings.TrimSpace(d.CheckoutURL) != ""
}
