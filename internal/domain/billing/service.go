package billing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PatientDirectory is the one outside collaborator the engine consults, and
// only at bill creation time.
type PatientDirectory interface {
	FindByID(ctx context.Context, id string) error
}

// Engine owns all billing state transitions. Every public operation validates
// its input before touching any store and runs under one engine-level mutex;
// the operations are short and never block on IO beyond the repositories, so
// a single lock keeps concurrent calls linearizable without finer-grained
// locking.
type Engine struct {
	mu       sync.Mutex
	bills    BillRepository
	payments PaymentRepository
	dues     DueDateStore
	patients PatientDirectory
	ids      *IDAllocator
	now      func() time.Time
}

func NewEngine(bills BillRepository, payments PaymentRepository, dues DueDateStore, patients PatientDirectory) *Engine {
	return &Engine{
		bills:    bills,
		payments: payments,
		dues:     dues,
		patients: patients,
		ids:      NewIDAllocator(),
		now:      time.Now,
	}
}

// Summary aggregates the amounts across every bill the engine tracks.
type Summary struct {
	BillCount        int                `json:"bill_count"`
	TotalBilled      decimal.Decimal    `json:"total_billed"`
	TotalCollected   decimal.Decimal    `json:"total_collected"`
	TotalOutstanding decimal.Decimal    `json:"total_outstanding"`
	ByStatus         map[BillStatus]int `json:"by_status"`
}

// CreateBill allocates an id, seeds the bill with a zero-amount line item
// carrying the description, and records the due date. The due date may be
// today but never earlier.
func (e *Engine) CreateBill(ctx context.Context, patientID, description string, dueDate time.Time) (*Bill, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, validationf("patient_id", "must not be blank")
	}
	if strings.TrimSpace(description) == "" {
		return nil, validationf("description", "must not be blank")
	}
	now := e.now()
	if dateOf(dueDate).Before(dateOf(now)) {
		return nil, validationf("due_date", "must not be before today, got %s", dueDate.Format("2006-01-02"))
	}
	if err := e.patients.FindByID(ctx, patientID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bill, err := NewBill(e.ids.Next(), patientID, now)
	if err != nil {
		return nil, err
	}
	if err := bill.AddItem(description, decimal.Zero); err != nil {
		return nil, err
	}
	bill.DeriveStatus(&dueDate, now)
	if err := e.bills.Create(ctx, bill); err != nil {
		return nil, err
	}
	if err := e.dues.Set(ctx, bill.ID, dueDate); err != nil {
		return nil, err
	}
	return bill.Clone(), nil
}

func (e *Engine) AddItemToBill(ctx context.Context, billID, description string, amount decimal.Decimal) (*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bill, err := e.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if err := bill.AddItem(description, amount); err != nil {
		return nil, err
	}
	due, err := e.dues.Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	bill.DeriveStatus(due, e.now())
	if err := e.bills.Update(ctx, bill); err != nil {
		return nil, err
	}
	return bill.Clone(), nil
}

// ProcessPayment records a COMPLETED payment against the bill. Overpay is
// rejected while the bill carries a positive total; a zero-total bill is
// discharged in full by any positive payment.
func (e *Engine) ProcessPayment(ctx context.Context, billID string, amount decimal.Decimal, method string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, validationf("amount", "must be positive, got %s", amount)
	}
	if strings.TrimSpace(method) == "" {
		return nil, validationf("payment_method", "must not be blank")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bill, err := e.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.TotalAmount.IsPositive() && bill.AmountPaid.Add(amount).GreaterThan(bill.TotalAmount) {
		return nil, validationf("amount", "payment of %s exceeds remaining balance of %s", amount, bill.RemainingBalance())
	}

	payment := &Payment{
		ID:              uuid.NewString(),
		BillID:          billID,
		Amount:          amount,
		PaymentDateTime: e.now(),
		PaymentMethod:   method,
		Status:          PaymentStatusCompleted,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := e.resettle(ctx, bill); err != nil {
		return nil, err
	}
	return payment.Clone(), nil
}

// UpdatePaymentStatus applies a forward-only payment status transition and
// resettles the owning bill. A refund that drops the paid amount below the
// total takes the bill back out of PAID.
func (e *Engine) UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus) (*Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payment, err := e.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("payment", paymentID)
	}
	if err := payment.TransitionTo(status); err != nil {
		return nil, err
	}
	if err := e.payments.Update(ctx, payment); err != nil {
		return nil, err
	}

	bill, err := e.loadBill(ctx, payment.BillID)
	if err != nil {
		return nil, err
	}
	if err := e.resettle(ctx, bill); err != nil {
		return nil, err
	}
	return payment.Clone(), nil
}

// resettle recomputes the bill's paid amount as the sum of its COMPLETED
// payments, re-derives the status, and persists the bill. Caller holds e.mu.
func (e *Engine) resettle(ctx context.Context, bill *Bill) error {
	payments, err := e.payments.ListByBill(ctx, bill.ID)
	if err != nil {
		return err
	}
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	bill.AmountPaid = paid
	due, err := e.dues.Get(ctx, bill.ID)
	if err != nil {
		return err
	}
	bill.DeriveStatus(due, e.now())
	return e.bills.Update(ctx, bill)
}

func (e *Engine) loadBill(ctx context.Context, billID string) (*Bill, error) {
	bill, err := e.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, notFound("bill", billID)
	}
	return bill, nil
}

// GetBill returns a copy of the bill with its status derived against the
// current time, so a bill that slid past its due date reads as OVERDUE
// without waiting for the next mutation.
func (e *Engine) GetBill(ctx context.Context, billID string) (*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bill, err := e.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	return e.view(ctx, bill)
}

func (e *Engine) view(ctx context.Context, bill *Bill) (*Bill, error) {
	due, err := e.dues.Get(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	bill.DeriveStatus(due, e.now())
	return bill, nil
}

func (e *Engine) ListBills(ctx context.Context) ([]*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listViews(ctx, func(*Bill) bool { return true })
}

// ListBillsByPatient returns every bill for the patient, oldest first. An
// unknown patient simply yields an empty list.
func (e *Engine) ListBillsByPatient(ctx context.Context, patientID string) ([]*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bills, err := e.bills.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]*Bill, 0, len(bills))
	for _, b := range bills {
		v, err := e.view(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) ListBillsByPaid(ctx context.Context, paid bool) ([]*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listViews(ctx, func(b *Bill) bool {
		return (b.Status == BillStatusPaid) == paid
	})
}

// ListOverdueBills returns bills whose tracked due date falls strictly before
// today and which are not fully paid. Partially paid bills past their due
// date are included even though their displayed status stays PARTIAL.
func (e *Engine) ListOverdueBills(ctx context.Context) ([]*Bill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := dateOf(e.now())
	bills, err := e.bills.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Bill
	for _, b := range bills {
		due, err := e.dues.Get(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if due == nil || !dateOf(*due).Before(today) {
			continue
		}
		b.DeriveStatus(due, e.now())
		if b.Status == BillStatusPaid {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (e *Engine) listViews(ctx context.Context, keep func(*Bill) bool) ([]*Bill, error) {
	bills, err := e.bills.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Bill
	for _, b := range bills {
		v, err := e.view(ctx, b)
		if err != nil {
			return nil, err
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (e *Engine) ListPaymentsByBill(ctx context.Context, billID string) ([]*Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.loadBill(ctx, billID); err != nil {
		return nil, err
	}
	return e.payments.ListByBill(ctx, billID)
}

// GetSummary aggregates billed, collected, and outstanding amounts across
// every bill, plus a count per status.
func (e *Engine) GetSummary(ctx context.Context) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bills, err := e.listViews(ctx, func(*Bill) bool { return true })
	if err != nil {
		return nil, err
	}
	s := &Summary{
		TotalBilled:      decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		ByStatus:         make(map[BillStatus]int),
	}
	for _, b := range bills {
		s.BillCount++
		s.TotalBilled = s.TotalBilled.Add(b.TotalAmount)
		s.TotalCollected = s.TotalCollected.Add(b.AmountPaid)
		s.TotalOutstanding = s.TotalOutstanding.Add(b.RemainingBalance())
		s.ByStatus[b.Status]++
	}
	return s, nil
}
