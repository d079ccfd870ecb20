package transaction

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]Record
	Now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[int64]Record{}}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *MemoryStore) FindByOrder(_ context.Context, orderID int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Create(_ context.Context, orderID int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[orderID]; ok {
		return rec, nil
	}
	m.nextID++
	rec := Record{ID: m.nextID, CreatedAt: m.now(), LastCheck: Sentinel, OrderID: orderID, Status: StatusPending}
	m.records[orderID] = rec
	return rec, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, orderID int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.LastCheck = m.now()
	m.records[orderID] = rec
	return nil
}

func (m *MemoryStore) MarkStatus(_ context.Context, orderID int64, status Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok || rec.Status == status {
		return false, nil
	}
	rec.Status = status
	rec.LastCheck = m.now()
	m.records[orderID] = rec
	return true, nil
}

func (m *MemoryStore) UpdateDetail(_ context.Context, orderID int64, detail Detail) error {
	encoded, err := EncodeDetail(detail)
	if err != nil {
		return err
	}
	decoded, err := DecodeDetail(encoded)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return nil
	}
	rec.Detail = decoded
	m.records[orderID] = rec
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
