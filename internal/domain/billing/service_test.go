package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// -- Mock patient directory --

type mockDirectory struct {
	known map[string]bool
}

func newMockDirectory(ids ...string) *mockDirectory {
	m := &mockDirectory{known: make(map[string]bool)}
	for _, id := range ids {
		m.known[id] = true
	}
	return m
}

func (m *mockDirectory) FindByID(_ context.Context, id string) error {
	if m.known[id] {
		return nil
	}
	return notFound("patient", id)
}

func newTestEngine(patients ...string) *Engine {
	return NewEngine(NewBillRepoMem(), NewPaymentRepoMem(), NewDueDateStoreMem(), newMockDirectory(patients...))
}

var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func freeze(e *Engine, at time.Time) {
	e.now = func() time.Time { return at }
	e.ids.now = e.now
}

func TestBillLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, err := e.CreateBill(ctx, "p1", "Inpatient admission", testNow.AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	if bill.Status != BillStatusUnpaid {
		t.Errorf("status = %s, want UNPAID", bill.Status)
	}
	if len(bill.Items) != 1 || !bill.Items[0].Amount.IsZero() {
		t.Fatalf("expected one zero-amount seed item, got %+v", bill.Items)
	}

	if _, err := e.AddItemToBill(ctx, bill.ID, "room charges", d("1200")); err != nil {
		t.Fatalf("AddItemToBill: %v", err)
	}
	bill, err = e.AddItemToBill(ctx, bill.ID, "lab work", d("300"))
	if err != nil {
		t.Fatalf("AddItemToBill: %v", err)
	}
	if want := d("1500"); !bill.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", bill.TotalAmount, want)
	}

	if _, err := e.ProcessPayment(ctx, bill.ID, d("500"), "card"); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	bill, _ = e.GetBill(ctx, bill.ID)
	if bill.Status != BillStatusPartial {
		t.Errorf("status after partial payment = %s, want PARTIAL", bill.Status)
	}

	if _, err := e.ProcessPayment(ctx, bill.ID, d("1000"), "cash"); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	bill, _ = e.GetBill(ctx, bill.ID)
	if bill.Status != BillStatusPaid {
		t.Errorf("status after full payment = %s, want PAID", bill.Status)
	}
	if bill.DatePaid == nil {
		t.Error("DatePaid not set")
	}
}

func TestCreateBillValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	if _, err := e.CreateBill(ctx, "", "desc", testNow); err == nil {
		t.Error("expected error for blank patient id")
	}
	if _, err := e.CreateBill(ctx, "p1", "  ", testNow); err == nil {
		t.Error("expected error for blank description")
	}

	// Yesterday is rejected, today is allowed even with the time of day past.
	if _, err := e.CreateBill(ctx, "p1", "desc", testNow.AddDate(0, 0, -1)); err == nil {
		t.Error("expected error for due date before today")
	}
	today := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	if _, err := e.CreateBill(ctx, "p1", "desc", today); err != nil {
		t.Errorf("due date today rejected: %v", err)
	}

	_, err := e.CreateBill(ctx, "ghost", "desc", testNow)
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Errorf("unknown patient error = %v, want NotFoundError", err)
	}

	bills, _ := e.ListBills(ctx)
	if len(bills) != 1 {
		t.Errorf("failed creates left %d bills, want 1", len(bills))
	}
}

func TestOverpayRejectedAndStateUntouched(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "consult", testNow)
	e.AddItemToBill(ctx, bill.ID, "consult fee", d("100"))
	e.ProcessPayment(ctx, bill.ID, d("60"), "card")

	_, err := e.ProcessPayment(ctx, bill.ID, d("40.01"), "card")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("overpay error = %v, want ValidationError", err)
	}

	got, _ := e.GetBill(ctx, bill.ID)
	if !got.AmountPaid.Equal(d("60")) {
		t.Errorf("paid = %s after rejected overpay, want 60", got.AmountPaid)
	}
	payments, _ := e.ListPaymentsByBill(ctx, bill.ID)
	if len(payments) != 1 {
		t.Errorf("payment count = %d after rejected overpay, want 1", len(payments))
	}
}

func TestZeroTotalBillPayment(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "registration", testNow)
	if _, err := e.ProcessPayment(ctx, bill.ID, d("25"), "cash"); err != nil {
		t.Fatalf("payment on zero-total bill: %v", err)
	}
	got, _ := e.GetBill(ctx, bill.ID)
	if got.Status != BillStatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "consult", testNow)

	if _, err := e.ProcessPayment(ctx, bill.ID, d("0"), "card"); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := e.ProcessPayment(ctx, bill.ID, d("10"), " "); err == nil {
		t.Error("expected error for blank method")
	}
	_, err := e.ProcessPayment(ctx, "9999", d("10"), "card")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Errorf("unknown bill error = %v, want NotFoundError", err)
	}
}

func TestBurstCreatesDistinctIDs(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		bill, err := e.CreateBill(ctx, "p1", "visit", time.Now().AddDate(0, 0, 7))
		if err != nil {
			t.Fatalf("CreateBill %d: %v", i, err)
		}
		if seen[bill.ID] {
			t.Fatalf("duplicate bill id %q", bill.ID)
		}
		seen[bill.ID] = true
	}
}

func TestListBillsByPatient(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1", "p2")
	freeze(e, testNow)

	e.CreateBill(ctx, "p1", "a", testNow)
	e.CreateBill(ctx, "p2", "b", testNow)
	e.CreateBill(ctx, "p1", "c", testNow)

	bills, err := e.ListBillsByPatient(ctx, "p1")
	if err != nil {
		t.Fatalf("ListBillsByPatient: %v", err)
	}
	if len(bills) != 2 {
		t.Errorf("p1 bills = %d, want 2", len(bills))
	}

	empty, err := e.ListBillsByPatient(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListBillsByPatient unknown: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown patient bills = %d, want 0", len(empty))
	}
}

func TestListBillsByPaid(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	paid, _ := e.CreateBill(ctx, "p1", "a", testNow)
	e.AddItemToBill(ctx, paid.ID, "svc", d("50"))
	e.ProcessPayment(ctx, paid.ID, d("50"), "card")
	unpaid, _ := e.CreateBill(ctx, "p1", "b", testNow)
	e.AddItemToBill(ctx, unpaid.ID, "svc", d("80"))

	paidBills, _ := e.ListBillsByPaid(ctx, true)
	if len(paidBills) != 1 || paidBills[0].ID != paid.ID {
		t.Errorf("paid filter returned %d bills", len(paidBills))
	}
	unpaidBills, _ := e.ListBillsByPaid(ctx, false)
	if len(unpaidBills) != 1 || unpaidBills[0].ID != unpaid.ID {
		t.Errorf("unpaid filter returned %d bills", len(unpaidBills))
	}
}

func TestListOverdueBills(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	overdue, _ := e.CreateBill(ctx, "p1", "a", testNow)
	e.AddItemToBill(ctx, overdue.ID, "svc", d("100"))

	partial, _ := e.CreateBill(ctx, "p1", "b", testNow)
	e.AddItemToBill(ctx, partial.ID, "svc", d("100"))
	e.ProcessPayment(ctx, partial.ID, d("30"), "card")

	settled, _ := e.CreateBill(ctx, "p1", "c", testNow)
	e.AddItemToBill(ctx, settled.ID, "svc", d("100"))
	e.ProcessPayment(ctx, settled.ID, d("100"), "card")

	notDue, _ := e.CreateBill(ctx, "p1", "d", testNow.AddDate(0, 0, 30))
	e.AddItemToBill(ctx, notDue.ID, "svc", d("100"))

	// Two days later every bill due at creation time is past due.
	freeze(e, testNow.AddDate(0, 0, 2))

	bills, err := e.ListOverdueBills(ctx)
	if err != nil {
		t.Fatalf("ListOverdueBills: %v", err)
	}
	got := make(map[string]BillStatus)
	for _, b := range bills {
		got[b.ID] = b.Status
	}
	if len(got) != 2 {
		t.Fatalf("overdue bills = %d, want 2 (got %v)", len(got), got)
	}
	if got[overdue.ID] != BillStatusOverdue {
		t.Errorf("unpaid past-due bill status = %s, want OVERDUE", got[overdue.ID])
	}
	// A partially paid bill past its due date is listed but keeps PARTIAL.
	if got[partial.ID] != BillStatusPartial {
		t.Errorf("partial past-due bill status = %s, want PARTIAL", got[partial.ID])
	}
	if _, ok := got[settled.ID]; ok {
		t.Error("fully paid bill listed as overdue")
	}
	if _, ok := got[notDue.ID]; ok {
		t.Error("bill due in the future listed as overdue")
	}
}

func TestGetBillReflectsOverdueAtReadTime(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "a", testNow)
	e.AddItemToBill(ctx, bill.ID, "svc", d("100"))

	freeze(e, testNow.AddDate(0, 0, 3))
	got, err := e.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if got.Status != BillStatusOverdue {
		t.Errorf("status = %s, want OVERDUE", got.Status)
	}
}

func TestRefundRevertsBill(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "a", testNow.AddDate(0, 0, 14))
	e.AddItemToBill(ctx, bill.ID, "svc", d("100"))
	first, _ := e.ProcessPayment(ctx, bill.ID, d("60"), "card")
	e.ProcessPayment(ctx, bill.ID, d("40"), "cash")

	got, _ := e.GetBill(ctx, bill.ID)
	if got.Status != BillStatusPaid {
		t.Fatalf("status = %s, want PAID", got.Status)
	}

	refunded, err := e.UpdatePaymentStatus(ctx, first.ID, PaymentStatusRefunded)
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if refunded.Status != PaymentStatusRefunded {
		t.Errorf("payment status = %s, want REFUNDED", refunded.Status)
	}

	got, _ = e.GetBill(ctx, bill.ID)
	if got.Status != BillStatusPartial {
		t.Errorf("bill status after refund = %s, want PARTIAL", got.Status)
	}
	if !got.AmountPaid.Equal(d("40")) {
		t.Errorf("paid after refund = %s, want 40", got.AmountPaid)
	}
	if got.DatePaid != nil {
		t.Error("DatePaid survived the refund")
	}
}

func TestUpdatePaymentStatusRules(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "a", testNow)
	e.AddItemToBill(ctx, bill.ID, "svc", d("100"))
	payment, _ := e.ProcessPayment(ctx, bill.ID, d("50"), "card")

	// Payments are recorded COMPLETED; going back to PENDING is forbidden.
	if _, err := e.UpdatePaymentStatus(ctx, payment.ID, PaymentStatusPending); err == nil {
		t.Error("expected error for backward transition")
	}

	_, err := e.UpdatePaymentStatus(ctx, "no-such-payment", PaymentStatusRefunded)
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Errorf("unknown payment error = %v, want NotFoundError", err)
	}
}

func TestGetSummary(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1", "p2")
	freeze(e, testNow)

	a, _ := e.CreateBill(ctx, "p1", "a", testNow.AddDate(0, 0, 14))
	e.AddItemToBill(ctx, a.ID, "svc", d("100"))
	e.ProcessPayment(ctx, a.ID, d("100"), "card")

	b, _ := e.CreateBill(ctx, "p2", "b", testNow.AddDate(0, 0, 14))
	e.AddItemToBill(ctx, b.ID, "svc", d("250"))
	e.ProcessPayment(ctx, b.ID, d("50"), "cash")

	s, err := e.GetSummary(ctx)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if s.BillCount != 2 {
		t.Errorf("bill count = %d, want 2", s.BillCount)
	}
	if !s.TotalBilled.Equal(d("350")) {
		t.Errorf("billed = %s, want 350", s.TotalBilled)
	}
	if !s.TotalCollected.Equal(d("150")) {
		t.Errorf("collected = %s, want 150", s.TotalCollected)
	}
	if !s.TotalOutstanding.Equal(d("200")) {
		t.Errorf("outstanding = %s, want 200", s.TotalOutstanding)
	}
	if s.ByStatus[BillStatusPaid] != 1 || s.ByStatus[BillStatusPartial] != 1 {
		t.Errorf("by status = %v", s.ByStatus)
	}
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")

	bill, _ := e.CreateBill(ctx, "p1", "a", time.Now().AddDate(0, 0, 7))
	if _, err := e.AddItemToBill(ctx, bill.ID, "svc", d("100")); err != nil {
		t.Fatalf("AddItemToBill: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ProcessPayment(ctx, bill.ID, d("10"), "card")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 10 {
		t.Errorf("%d payments succeeded, want exactly 10", succeeded)
	}

	got, _ := e.GetBill(ctx, bill.ID)
	if !got.AmountPaid.Equal(d("100")) {
		t.Errorf("paid = %s, want 100", got.AmountPaid)
	}
	if got.Status != BillStatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
}

func TestReturnedBillsAreCopies(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine("p1")
	freeze(e, testNow)

	bill, _ := e.CreateBill(ctx, "p1", "a", testNow)
	e.AddItemToBill(ctx, bill.ID, "svc", d("100"))

	got, _ := e.GetBill(ctx, bill.ID)
	got.Items[0].Amount = d("999999")
	got.AmountPaid = d("999999")

	fresh, _ := e.GetBill(ctx, bill.ID)
	if !fresh.TotalAmount.Equal(d("100")) || !fresh.AmountPaid.IsZero() {
		t.Error("mutating a returned bill leaked into engine state")
	}
}
