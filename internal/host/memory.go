package host

import (
	"context"
	"strings"
	"sync"
)

// StatusUpdate records one UpdateOrderStatus call on a MemoryStore.
type StatusUpdate struct {
	OrderID int64
	Status  OrderStatus
}

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu           sync.Mutex
	orders       map[int64]Order
	subdistricts map[int64]Subdistrict
	meta         map[int64]map[string]any
	updates      []StatusUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:       map[int64]Order{},
		subdistricts: map[int64]Subdistrict{},
		meta:         map[int64]map[string]any{},
	}
}

// PutOrder adds or replaces an order.
func (m *MemoryStore) PutOrder(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// PutSubdistrict adds or replaces a subdistrict.
func (m *MemoryStore) PutSubdistrict(s Subdistrict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subdistricts[s.ID] = s
}

func (m *MemoryStore) GetOrder(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *MemoryStore) UpdateOrderMeta(_ context.Context, id int64, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if m.meta[id] == nil {
		m.meta[id] = map[string]any{}
	}
	m.meta[id][key] = value
	if key == MetaChipInStatus {
		if o.Meta.ChipIn == nil {
			o.Meta.ChipIn = &ChipInMeta{}
		}
		if s, ok := value.(string); ok {
			o.Meta.ChipIn.Status = s
		}
		m.orders[id] = o
	}
	return nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	m.updates = append(m.updates, StatusUpdate{OrderID: id, Status: status})
	return nil
}

func (m *MemoryStore) GetSubdistrict(_ context.Context, id int64) (Subdistrict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subdistricts[id]
	if !ok {
		return Subdistrict{}, ErrSubdistrictNotFound
	}
	return s, nil
}

// StatusUpdates returns the status updates applied so far.
func (m *MemoryStore) StatusUpdates() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusUpdate(nil), m.updates...)
}

// MetaValue returns a meta value written through UpdateOrderMeta.
func (m *MemoryStore) MetaValue(id int64, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.meta[id][strings.TrimSpace(key)]
	return v, ok
}
