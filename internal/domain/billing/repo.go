package billing

import (
	"context"
	"time"
)

// Repositories return (nil, nil) for lookups that match nothing; the engine
// owns the translation to NotFoundError. Implementations never mutate the
// values they are handed or hand out live internal state.

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id string) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	List(ctx context.Context) ([]*Bill, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Bill, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByBill(ctx context.Context, billID string) ([]*Payment, error)
}

// DueDateStore tracks bill due dates separately from the bill record itself.
// Overdue-ness is a query concern; a bill with no tracked due date falls back
// to the issue-date grace period.
type DueDateStore interface {
	Set(ctx context.Context, billID string, due time.Time) error
	Get(ctx context.Context, billID string) (*time.Time, error)
}
