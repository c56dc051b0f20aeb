package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const billCols = `id, patient_id, issue_date, date_paid, status, total_amount, amount_paid`

func (r *billRepoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.PatientID, &b.IssueDate, &b.DatePaid, &b.Status,
		&b.TotalAmount, &b.AmountPaid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *billRepoPG) loadItems(ctx context.Context, b *Bill) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT description, amount FROM bill_items
		WHERE bill_id = $1 ORDER BY position`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	b.Items = []BillItem{}
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.Description, &item.Amount); err != nil {
			return err
		}
		b.Items = append(b.Items, item)
	}
	return rows.Err()
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bills (id, patient_id, issue_date, date_paid, status, total_amount, amount_paid)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.PatientID, b.IssueDate, b.DatePaid, b.Status, b.TotalAmount, b.AmountPaid)
	if err != nil {
		return err
	}
	return r.saveItems(ctx, b)
}

func (r *billRepoPG) GetByID(ctx context.Context, id string) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1`, id))
	if err != nil || b == nil {
		return nil, err
	}
	if err := r.loadItems(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Update rewrites the bill row and its line items. Callers serialize bill
// mutations, so the delete-reinsert of items is not racing anything.
func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bills SET date_paid=$2, status=$3, total_amount=$4, amount_paid=$5, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.DatePaid, b.Status, b.TotalAmount, b.AmountPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("bill", b.ID)
	}
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, b.ID); err != nil {
		return err
	}
	return r.saveItems(ctx, b)
}

func (r *billRepoPG) saveItems(ctx context.Context, b *Bill) error {
	for i, item := range b.Items {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bill_items (bill_id, position, description, amount)
			VALUES ($1,$2,$3,$4)`,
			b.ID, i, item.Description, item.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *billRepoPG) List(ctx context.Context) ([]*Bill, error) {
	return r.listWhere(ctx, ``)
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*Bill, error) {
	return r.listWhere(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *billRepoPG) listWhere(ctx context.Context, where string, args ...interface{}) ([]*Bill, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+billCols+` FROM bills `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []*Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.PatientID, &b.IssueDate, &b.DatePaid, &b.Status,
			&b.TotalAmount, &b.AmountPaid); err != nil {
			return nil, err
		}
		bills = append(bills, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range bills {
		if err := r.loadItems(ctx, b); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const paymentCols = `id, bill_id, amount, payment_date_time, payment_method, status`

func (r *paymentRepoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.BillID, &p.Amount, &p.PaymentDateTime, &p.PaymentMethod, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, bill_id, amount, payment_date_time, payment_method, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.BillID, p.Amount, p.PaymentDateTime, p.PaymentMethod, p.Status)
	return err
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id string) (*Payment, error) {
	return r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = $1`, id))
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE payments SET status=$2 WHERE id = $1`, p.ID, p.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("payment", p.ID)
	}
	return nil
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID string) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE bill_id = $1 ORDER BY payment_date_time, id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.PaymentDateTime, &p.PaymentMethod, &p.Status); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// =========== Due Date Store ===========

type dueDateStorePG struct{ pool *pgxpool.Pool }

func NewDueDateStorePG(pool *pgxpool.Pool) DueDateStore { return &dueDateStorePG{pool: pool} }

func (s *dueDateStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

func (s *dueDateStorePG) Set(ctx context.Context, billID string, due time.Time) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO bill_due_dates (bill_id, due_date) VALUES ($1,$2)
		ON CONFLICT (bill_id) DO UPDATE SET due_date = EXCLUDED.due_date`,
		billID, due)
	return err
}

func (s *dueDateStorePG) Get(ctx context.Context, billID string) (*time.Time, error) {
	var due time.Time
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT due_date FROM bill_due_dates WHERE bill_id = $1`, billID).Scan(&due)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &due, nil
}
