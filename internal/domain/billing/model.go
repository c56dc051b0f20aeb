package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillStatus is derived from the bill's amounts and dates after every
// mutation; it is never stored as independently settable truth.
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "UNPAID"
	BillStatusPartial BillStatus = "PARTIAL"
	BillStatusPaid    BillStatus = "PAID"
	BillStatusOverdue BillStatus = "OVERDUE"
)

// PaymentStatus only moves forward: PENDING may become COMPLETED or FAILED,
// and COMPLETED may become REFUNDED.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// CanTransitionTo reports whether the forward-only transition from s to next is allowed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known payment statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// BillItem is a single charge entry. Items are immutable once added;
// corrections are made with offsetting items, never in-place edits.
type BillItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Bill is the aggregate record of charges and payments for one patient
// account. TotalAmount is always recomputed as the sum of item amounts and
// AmountPaid as the sum of COMPLETED payments; neither is adjusted
// incrementally, so the two can never drift from their sources.
type Bill struct {
	ID          string          `json:"id"`
	PatientID   string          `json:"patient_id"`
	IssueDate   time.Time       `json:"issue_date"`
	DatePaid    *time.Time      `json:"date_paid,omitempty"`
	Status      BillStatus      `json:"status"`
	Items       []BillItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
}

// overdueGraceDays is the fallback overdue threshold when a bill has no
// explicit due date.
const overdueGraceDays = 30

// dateOf truncates a time to its calendar date. Overdue comparisons work at
// day granularity: a bill due today is not yet overdue.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func NewBill(id, patientID string, issueDate time.Time) (*Bill, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("id", "must not be blank")
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, validationf("patient_id", "must not be blank")
	}
	return &Bill{
		ID:          id,
		PatientID:   patientID,
		IssueDate:   issueDate,
		Status:      BillStatusUnpaid,
		Items:       []BillItem{},
		TotalAmount: decimal.Zero,
		AmountPaid:  decimal.Zero,
	}, nil
}

// AddItem appends a line item and recomputes the total from scratch.
func (b *Bill) AddItem(description string, amount decimal.Decimal) error {
	if strings.TrimSpace(description) == "" {
		return validationf("description", "must not be blank")
	}
	if amount.IsNegative() {
		return validationf("amount", "must not be negative, got %s", amount)
	}
	b.Items = append(b.Items, BillItem{Description: description, Amount: amount})
	b.recomputeTotal()
	b.DeriveStatus(nil, time.Now())
	return nil
}

// ApplyPayment raises the paid amount. Payments that would push the paid
// amount above the total are rejected while the bill carries items; on a
// zero-total bill any positive payment discharges it in full, since a
// remaining balance is undefined until items exist.
func (b *Bill) ApplyPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationf("amount", "must be positive, got %s", amount)
	}
	if b.TotalAmount.IsPositive() && b.AmountPaid.Add(amount).GreaterThan(b.TotalAmount) {
		return validationf("amount", "payment of %s exceeds remaining balance of %s", amount, b.RemainingBalance())
	}
	b.AmountPaid = b.AmountPaid.Add(amount)
	b.DeriveStatus(nil, time.Now())
	return nil
}

// RemainingBalance is total minus paid, floored at zero.
func (b *Bill) RemainingBalance() decimal.Decimal {
	rem := b.TotalAmount.Sub(b.AmountPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (b *Bill) recomputeTotal() {
	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.Amount)
	}
	b.TotalAmount = total
}

// settled reports whether the bill is fully discharged: paid covers the total
// when a total exists, or any positive payment landed on a zero-total bill.
func (b *Bill) settled() bool {
	if b.TotalAmount.IsPositive() {
		return b.AmountPaid.GreaterThanOrEqual(b.TotalAmount)
	}
	return b.AmountPaid.IsPositive()
}

// overdueThreshold is the explicit due date when one is tracked, otherwise
// the issue date plus a 30-day grace period.
func (b *Bill) overdueThreshold(dueDate *time.Time) time.Time {
	if dueDate != nil {
		return *dueDate
	}
	return b.IssueDate.AddDate(0, 0, overdueGraceDays)
}

// DeriveStatus recomputes the status as a pure function of the current
// amounts, the tracked due date, and now. PAID wins over PARTIAL, PARTIAL
// over OVERDUE, OVERDUE over UNPAID. A bill that is no longer settled, e.g.
// after a refund, drops back out of PAID and loses its paid date.
func (b *Bill) DeriveStatus(dueDate *time.Time, now time.Time) {
	if b.settled() {
		b.Status = BillStatusPaid
		if b.DatePaid == nil {
			paid := now
			b.DatePaid = &paid
		}
		return
	}
	b.DatePaid = nil
	if b.AmountPaid.IsPositive() {
		b.Status = BillStatusPartial
		return
	}
	if dateOf(now).After(dateOf(b.overdueThreshold(dueDate))) {
		b.Status = BillStatusOverdue
		return
	}
	b.Status = BillStatusUnpaid
}

// Clone returns a deep copy so callers can never mutate engine-held state.
func (b *Bill) Clone() *Bill {
	dup := *b
	dup.Items = make([]BillItem, len(b.Items))
	copy(dup.Items, b.Items)
	if b.DatePaid != nil {
		paid := *b.DatePaid
		dup.DatePaid = &paid
	}
	return &dup
}

// Payment records a single payment transaction against a bill. Amount and
// bill id never change after creation; only the status transitions.
type Payment struct {
	ID              string          `json:"id"`
	BillID          string          `json:"bill_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDateTime time.Time       `json:"payment_date_time"`
	PaymentMethod   string          `json:"payment_method"`
	Status          PaymentStatus   `json:"status"`
}

// TransitionTo applies a forward-only status change.
func (p *Payment) TransitionTo(next PaymentStatus) error {
	if !next.Valid() {
		return validationf("status", "unknown payment status %q", next)
	}
	if !p.Status.CanTransitionTo(next) {
		return validationf("status", "cannot transition payment from %s to %s", p.Status, next)
	}
	p.Status = next
	return nil
}

// Clone returns a copy safe to hand out of the engine.
func (p *Payment) Clone() *Payment {
	dup := *p
	return &dup
}
