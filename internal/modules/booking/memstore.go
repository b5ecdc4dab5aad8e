// README: In-memory booking store with the same compare-and-swap contract as the PostgreSQL store.
package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripease/internal/apperr"
)

type externalKey struct {
	source string
	id     int64
}

type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	nextEvt  int64
	bookings map[int64]*Booking
	external map[externalKey]int64
	events   []Event
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[int64]*Booking),
		external: make(map[externalKey]int64),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var key externalKey
	if b.External != nil {
		key = externalKey{b.External.SourceSystem, b.External.ExternalBookingID}
		if _, exists := m.external[key]; exists {
			return apperr.New(apperr.ErrDuplicate, "booking already exists for this source system and external booking id")
		}
	}
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = m.now()
	b.UpdatedAt = b.CreatedAt
	m.bookings[b.ID] = clone(b)
	if b.External != nil {
		m.external[key] = b.ID
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (m *MemoryStore) GetByExternal(ctx context.Context, sourceSystem string, externalID int64) (*Booking, error) {
	m.mu.Lock()
	id, ok := m.external[externalKey{sourceSystem, externalID}]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) ListPending(_ context.Context) ([]*Booking, error) {
	return m.filter(func(b *Booking) bool { return b.Status == StatusPending && b.DriverID == nil }), nil
}

func (m *MemoryStore) ListByCustomer(_ context.Context, customerID int64) ([]*Booking, error) {
	return m.filter(func(b *Booking) bool { return b.CustomerID == customerID }), nil
}

func (m *MemoryStore) ListByDriver(_ context.Context, driverID int64) ([]*Booking, error) {
	return m.filter(func(b *Booking) bool { return b.DriverID != nil && *b.DriverID == driverID }), nil
}

func (m *MemoryStore) ListBySource(_ context.Context, sourceSystem string) ([]*Booking, error) {
	return m.filter(func(b *Booking) bool { return b.External != nil && b.External.SourceSystem == sourceSystem }), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[t.ID]
	if !ok || b.Status != t.From || b.StatusVersion != t.Version {
		return false, nil
	}
	if t.DriverID != nil {
		if b.DriverID != nil {
			return false, nil
		}
		d := *t.DriverID
		b.DriverID = &d
	}
	if t.DriverEmail != "" {
		b.DriverEmail = t.DriverEmail
	}
	b.Status = t.To
	b.StatusVersion++
	b.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvt++
	e.ID = m.nextEvt
	m.events = append(m.events, *e)
	return nil
}

// Events returns the recorded state events of one booking in append order.
func (m *MemoryStore) Events(bookingID int64) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) filter(keep func(*Booking) bool) []*Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Booking{}
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, clone(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func clone(b *Booking) *Booking {
	c := *b
	if b.DriverID != nil {
		d := *b.DriverID
		c.DriverID = &d
	}
	if b.External != nil {
		ext := *b.External
		c.External = &ext
	}
	return &c
}
