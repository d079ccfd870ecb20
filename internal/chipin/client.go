package chipin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const maxErrorBody = 2048

// ErrNotConfigured is returned when a call is attempted without brand id or secret key.
var ErrNotConfigured = errors.New("chipin: credentials not configured")

// GatewayError reports a transport failure or a non-2xx response from the provider.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("chipin %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chipin %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the Chip In purchases API using one credential set.
type Client struct {
	Creds    Credentials
	HTTP     Doer
	validate *validator.Validate
}

// NewClient returns a client bound to the given credentials.
func NewClient(creds Credentials, doer Doer) *Client {
	return &Client{Creds: creds, HTTP: doer, validate: validator.New()}
}

// CreatePurchase submits a new purchase and returns the provider's representation of it.
func (c *Client) CreatePurchase(ctx context.Context, p Purchase) (Purchase, error) {
	if !c.Creds.Configured() {
		return Purchase{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("chipin.Client").Start(ctx, "ChipIn.CreatePurchase")
	defer span.End()
	span.SetAttributes(attribute.String("chipin.reference", p.Reference), attribute.String("chipin.mode", string(c.Creds.Mode)))

	if p.BrandID == "" {
		p.BrandID = c.Creds.BrandID
	}
	if err := c.validator().Struct(p); err != nil {
		return Purchase{}, fmt.Errorf("chipin: invalid purchase: %w", err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Purchase{}, fmt.Errorf("chipin: encode purchase: %w", err)
	}
	var out Purchase
	if err := c.call(ctx, "create_purchase", http.MethodPost, "purchases/", body, &out); err != nil {
		span.RecordError(err)
		return Purchase{}, err
	}
	return out, nil
}

// GetPurchase fetches a purchase by its provider id.
func (c *Client) GetPurchase(ctx context.Context, id string) (Purchase, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Purchase{}, errors.New("chipin: purchase id is required")
	}
	ctx, span := otel.Tracer("chipin.Client").Start(ctx, "ChipIn.GetPurchase")
	defer span.End()
	var out Purchase
	if err := c.call(ctx, "get_purchase", http.MethodGet, "purchases/"+url.PathEscape(id)+"/", nil, &out); err != nil {
		span.RecordError(err)
		return Purchase{}, err
	}
	return out, nil
}

// PublicKey returns the PEM encoded key the provider signs callbacks with.
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("chipin.Client").Start(ctx, "ChipIn.PublicKey")
	defer span.End()
	var key string
	if err := c.call(ctx, "public_key", http.MethodGet, "public_key/", nil, &key); err != nil {
		span.RecordError(err)
		return "", err
	}
	return key, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body []byte, out any) error {
	if c.HTTP == nil {
		return &GatewayError{Op: op, Err: errors.New("http client not configured")}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Creds.url(path), reader)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.Creds.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) validator() *validator.Validate {
	if c.validate == nil {
		c.validate = validator.New()
	}
	return c.validate
}
