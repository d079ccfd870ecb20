package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status values written to a transaction record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
)

// Sentinel is the last_check value of a record that has never been updated.
var Sentinel = time.Unix(0, 0).UTC()

var (
	// ErrNotFound indicates no record exists for the order.
	ErrNotFound = errors.New("transaction: not found")
	// ErrStoreUnavailable indicates the store has no database handle.
	ErrStoreUnavailable = errors.New("transaction: store unavailable")
)

// Record is the local shadow of a gateway purchase for one host order.
type Record struct {
	ID        int64
	CreatedAt time.Time
	LastCheck time.Time
	OrderID   int64
	Status    Status
	Detail    Detail
}

// HasCheckoutURL reports whether a cached checkout URL can be reused.
func (r Record) HasCheckoutURL() bool {
	return r.Detail.HasCheckoutURL()
}

// Store persists transaction records. order_id is unique.
type Store interface {
	FindByOrder(ctx context.Context, orderID int64) (Record, error)
	Create(ctx context.Context, orderID int64) (Record, error)
	UpdateStatus(ctx context.Context, orderID int64, status Status) error
	// MarkStatus updates the status only when it differs from the stored one
	// and reports whether a row changed.
	MarkStatus(ctx context.Context, orderID int64, status Status) (bool, error)
	UpdateDetail(ctx context.Context, orderID int64, detail Detail) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

const selectColumns = `id, created_at, last_check, order_id, status, detail`

// FindByOrder returns the record for orderID or ErrNotFound.
func (s *PGStore) FindByOrder(ctx context.Context, orderID int64) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM sejolisa_chip_in_transaction WHERE order_id = $1`, orderID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Create inserts a pending record. When a record already exists for the
// order it is returned unchanged.
func (s *PGStore) Create(ctx context.Context, orderID int64) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO sejolisa_chip_in_transaction (order_id, status, last_check)
VALUES ($1, $2, $3)
ON CONFLICT (order_id) DO NOTHING
RETURNING `+selectColumns, orderID, string(StatusPending), Sentinel)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.FindByOrder(ctx, orderID)
	}
	if isUniqueViolation(err) {
		return s.FindByOrder(ctx, orderID)
	}
	return rec, err
}

// UpdateStatus sets the status and refreshes last_check.
func (s *PGStore) UpdateStatus(ctx context.Context, orderID int64, status Status) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE sejolisa_chip_in_transaction SET status = $2, last_check = now() WHERE order_id = $1`, orderID, string(status))
	return err
}

// MarkStatus is UpdateStatus guarded by the current status.
func (s *PGStore) MarkStatus(ctx context.Context, orderID int64, status Status) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sejolisa_chip_in_transaction SET status = $2, last_check = now()
WHERE order_id = $1 AND status <> $2`, orderID, string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateDetail stores the gateway snapshot.
func (s *PGStore) UpdateDetail(ctx context.Context, orderID int64, detail Detail) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	encoded, err := EncodeDetail(detail)
	if err != nil {
		return fmt.Errorf("transaction: encode detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE sejolisa_chip_in_transaction SET detail = $2 WHERE order_id = $1`, orderID, encoded)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		status string
		detail []byte
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.LastCheck, &rec.OrderID, &status, &detail); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	d, err := DecodeDetail(detail)
	if err != nil {
		return Record{}, err
	}
	rec.Detail = d
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
