package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the slice of the host platform this service reads and writes.
type Store interface {
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrderMeta(ctx context.Context, id int64, key string, value any) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	GetSubdistrict(ctx context.Context, id int64) (Subdistrict, error)
}

// ErrStoreUnavailable indicates the store has no database handle.
var ErrStoreUnavailable = errors.New("host: store unavailable")

// NewStore constructs a Store over the host tables.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

type PGStore struct {
	pool *pgxpool.Pool
}

const orderQuery = `SELECT o.id, o.status, o.product_id, o.user_id, o.quantity, o.grand_total::text,
       o.address, o.payment_gateway, o.meta_data,
       p.name, p.type, p.price::text, p.subscription,
       u.display_name, u.email, u.phone, u.address, COALESCE(u.destination, 0)
FROM sejolisa_orders o
JOIN sejolisa_products p ON p.id = o.product_id
JOIN sejolisa_users u ON u.id = o.user_id
WHERE o.id = $1`

func (s *PGStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	var (
		o                 Order
		status            string
		grandTotal, price string
		meta              []byte
	)
	err := s.pool.QueryRow(ctx, orderQuery, id).Scan(
		&o.ID, &status, &o.ProductID, &o.UserID, &o.Quantity, &grandTotal,
		&o.Address, &o.PaymentGateway, &meta,
		&o.Product.Name, &o.Product.Type, &price, &o.Product.Subscription,
		&o.User.DisplayName, &o.User.Email, &o.User.Phone, &o.User.Address, &o.User.Destination,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	o.Product.ID = o.ProductID
	o.User.ID = o.UserID
	if o.GrandTotal, err = decimal.NewFromString(grandTotal); err != nil {
		return Order{}, fmt.Errorf("host: grand total: %w", err)
	}
	if o.Product.Price, err = decimal.NewFromString(price); err != nil {
		return Order{}, fmt.Errorf("host: product price: %w", err)
	}
	if o.Meta, err = DecodeMeta(meta); err != nil {
		return Order{}, err
	}
	return o, nil
}

// UpdateOrderMeta sets a dotted key path (e.g. "chip-in.status") inside meta_data.
func (s *PGStore) UpdateOrderMeta(ctx context.Context, id int64, key string, value any) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	path := strings.Split(strings.TrimSpace(key), ".")
	if len(path) == 0 || path[0] == "" {
		return errors.New("host: meta key is required")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("host: encode meta: %w", err)
	}
	query := `UPDATE sejolisa_orders SET meta_data = jsonb_set(meta_data, $2::text[], $3::jsonb, true), updated_at = now() WHERE id = $1`
	args := []any{id, path, encoded}
	if len(path) > 1 {
		// jsonb_set does not create missing parents
		query = `UPDATE sejolisa_orders
SET meta_data = jsonb_set(
        CASE WHEN meta_data #> $4::text[] IS NULL THEN jsonb_set(meta_data, $4::text[], '{}'::jsonb, true) ELSE meta_data END,
        $2::text[], $3::jsonb, true),
    updated_at = now()
WHERE id = $1`
		args = append(args, path[:len(path)-1])
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PGStore) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sejolisa_orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PGStore) GetSubdistrict(ctx context.Context, id int64) (Subdistrict, error) {
	if s == nil || s.pool == nil {
		return Subdistrict{}, ErrStoreUnavailable
	}
	var sd Subdistrict
	err := s.pool.QueryRow(ctx, `SELECT id, province, type, city, subdistrict FROM sejolisa_subdistricts WHERE id = $1`, id).
		Scan(&sd.ID, &sd.Province, &sd.Type, &sd.City, &sd.Subdistrict)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subdistrict{}, ErrSubdistrictNotFound
	}
	return sd, err
}

// DecodeMeta parses the meta_data column, keeping unknown keys in Extra.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("host: decode meta: %w", err)
	}
	extra := map[string]any{}
	if err := json.Unmarshal(data, &extra); err != nil {
		return Meta{}, fmt.Errorf("host: decode meta: %w", err)
	}
	delete(extra, "chip-in")
	delete(extra, "shipping_data")
	delete(extra, "coupon")
	if len(extra) > 0 {
		m.Extra = extra
	}
	return m, nil
}
