package patient

import (
	"context"
	"sync"
)

type repoMem struct {
	mu       sync.RWMutex
	patients map[string]*Patient
	order    []string
}

func NewRepoMem() Repository {
	return &repoMem{patients: make(map[string]*Patient)}
}

func (r *repoMem) Create(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; ok {
		return validationf("id", "patient %q already registered", p.ID)
	}
	dup := *p
	r.patients[p.ID] = &dup
	r.order = append(r.order, p.ID)
	return nil
}

func (r *repoMem) GetByID(ctx context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, nil
	}
	dup := *p
	return &dup, nil
}

func (r *repoMem) List(ctx context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Patient, 0, len(r.order))
	for _, id := range r.order {
		dup := *r.patients[id]
		out = append(out, &dup)
	}
	return out, nil
}
