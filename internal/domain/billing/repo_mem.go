package billing

import (
	"context"
	"sync"
	"time"
)

// In-memory repositories backing the default deployment. State lives for the
// lifetime of the owning engine instance; there is no package-level storage.

type billRepoMem struct {
	mu    sync.RWMutex
	bills map[string]*Bill
	order []string
}

func NewBillRepoMem() BillRepository {
	return &billRepoMem{bills: make(map[string]*Bill)}
}

func (r *billRepoMem) Create(ctx context.Context, b *Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bills[b.ID]; !ok {
		r.order = append(r.order, b.ID)
	}
	r.bills[b.ID] = b.Clone()
	return nil
}

func (r *billRepoMem) GetByID(ctx context.Context, id string) (*Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bills[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (r *billRepoMem) Update(ctx context.Context, b *Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bills[b.ID]; !ok {
		return notFound("bill", b.ID)
	}
	r.bills[b.ID] = b.Clone()
	return nil
}

func (r *billRepoMem) List(ctx context.Context) ([]*Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bill, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bills[id].Clone())
	}
	return out, nil
}

func (r *billRepoMem) ListByPatient(ctx context.Context, patientID string) ([]*Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Bill
	for _, id := range r.order {
		if b := r.bills[id]; b.PatientID == patientID {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

type paymentRepoMem struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	byBill   map[string][]string
}

func NewPaymentRepoMem() PaymentRepository {
	return &paymentRepoMem{
		payments: make(map[string]*Payment),
		byBill:   make(map[string][]string),
	}
}

func (r *paymentRepoMem) Create(ctx context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p.Clone()
	r.byBill[p.BillID] = append(r.byBill[p.BillID], p.ID)
	return nil
}

func (r *paymentRepoMem) GetByID(ctx context.Context, id string) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (r *paymentRepoMem) Update(ctx context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return notFound("payment", p.ID)
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *paymentRepoMem) ListByBill(ctx context.Context, billID string) ([]*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byBill[billID]
	out := make([]*Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.payments[id].Clone())
	}
	return out, nil
}

type dueDateStoreMem struct {
	mu   sync.RWMutex
	dues map[string]time.Time
}

func NewDueDateStoreMem() DueDateStore {
	return &dueDateStoreMem{dues: make(map[string]time.Time)}
}

func (s *dueDateStoreMem) Set(ctx context.Context, billID string, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dues[billID] = due
	return nil
}

func (s *dueDateStoreMem) Get(ctx context.Context, billID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due, ok := s.dues[billID]
	if !ok {
		return nil, nil
	}
	return &due, nil
}
