/*
Package sqlite provides a SQLite-backed implementation of budget.TxStore.

PURPOSE:
  Persists expenses, commitments and payments and answers the aggregate
  queries the consistency engine relies on. In production the same
  queries run on PostgreSQL with minor dialect changes.

KEY TABLES:
  expenses:     Root records, unique protocol_number
  commitments:  expense_id never changes, unique commitment_number
  payments:     commitment_id may change, unique payment_number

AMOUNTS:
  Stored as INTEGER cents (amount_cents). SUM over integers is exact, so
  no floating point ever enters a floor or ceiling comparison.

CONCURRENCY:
  The pool is pinned to a single connection and transactions are opened
  with _txlock=immediate. A WithTx call therefore holds the write lock
  from its first sum read until commit, and two mutations against the
  same parent cannot interleave between read and write.

MIGRATION:
  Schema is applied on New() from the embedded migrations/ directory with
  golang-migrate (see migrate.go).

USAGE:
  store, err := sqlite.New("./data/budget.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := budget.NewService(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/budget-engine/budget"
)

const (
	dateTimeLayout = time.RFC3339
	dateLayout     = "2006-01-02"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements budget.Store over a querier.
type queries struct {
	q querier
}

// Store implements budget.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ budget.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: serializes writers, and keeps ":memory:" a single
	// database instead of one per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{queries: &queries{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction.
// If fn returns an error the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(budget.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset deletes every row and restarts id sequences. Demo use only.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Children first; foreign keys are RESTRICT.
	for _, stmt := range []string{
		"DELETE FROM payments",
		"DELETE FROM commitments",
		"DELETE FROM expenses",
		"DELETE FROM sqlite_sequence WHERE name IN ('expenses', 'commitments', 'payments')",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, protocol_number, category, protocol_date, due_date, creditor, description, amount_cents`

func (q *queries) FindExpense(ctx context.Context, id budget.ExpenseID) (*budget.Expense, error) {
	return q.queryExpense(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
}

func (q *queries) FindExpenseByProtocol(ctx context.Context, protocol string) (*budget.Expense, error) {
	return q.queryExpense(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE protocol_number = ?", protocol)
}

func (q *queries) ExpenseProtocolExists(ctx context.Context, protocol string) (bool, error) {
	return q.exists(ctx, "SELECT EXISTS(SELECT 1 FROM expenses WHERE protocol_number = ?)", protocol)
}

func (q *queries) ListExpenses(ctx context.Context) ([]budget.Expense, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+expenseColumns+" FROM expenses ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	expenses := []budget.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (q *queries) SaveExpense(ctx context.Context, e *budget.Expense) error {
	now := time.Now().UTC().Format(dateTimeLayout)

	if e.ID == 0 {
		res, err := q.q.ExecContext(ctx, `
			INSERT INTO expenses
			(protocol_number, category, protocol_date, due_date, creditor, description, amount_cents, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ProtocolNumber, e.Category,
			e.ProtocolDate.UTC().Format(dateTimeLayout), e.DueDate.UTC().Format(dateTimeLayout),
			e.Creditor, e.Description, e.Amount, now, now,
		)
		if err != nil {
			return translate(err, budget.KindExpense, e.ProtocolNumber)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read expense id: %w", err)
		}
		e.ID = budget.ExpenseID(id)
		return nil
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE expenses SET
			protocol_number = ?, category = ?, protocol_date = ?, due_date = ?,
			creditor = ?, description = ?, amount_cents = ?, updated_at = ?
		WHERE id = ?
	`,
		e.ProtocolNumber, e.Category,
		e.ProtocolDate.UTC().Format(dateTimeLayout), e.DueDate.UTC().Format(dateTimeLayout),
		e.Creditor, e.Description, e.Amount, now, e.ID,
	)
	if err != nil {
		return translate(err, budget.KindExpense, e.ProtocolNumber)
	}
	return requireRow(res, budget.KindExpense, int64(e.ID))
}

func (q *queries) DeleteExpense(ctx context.Context, id budget.ExpenseID) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

func (q *queries) HasCommitments(ctx context.Context, id budget.ExpenseID) (bool, error) {
	return q.exists(ctx, "SELECT EXISTS(SELECT 1 FROM commitments WHERE expense_id = ?)", id)
}

func (q *queries) queryExpense(ctx context.Context, query string, args ...any) (*budget.Expense, error) {
	e, err := scanExpense(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanExpense(row scanner) (*budget.Expense, error) {
	var (
		e            budget.Expense
		protocolDate string
		dueDate      string
	)
	err := row.Scan(&e.ID, &e.ProtocolNumber, &e.Category, &protocolDate, &dueDate,
		&e.Creditor, &e.Description, &e.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}
	if e.ProtocolDate, err = time.Parse(dateTimeLayout, protocolDate); err != nil {
		return nil, fmt.Errorf("failed to parse protocol_date of expense %d: %w", e.ID, err)
	}
	if e.DueDate, err = time.Parse(dateTimeLayout, dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date of expense %d: %w", e.ID, err)
	}
	return &e, nil
}

// =============================================================================
// COMMITMENTS
// =============================================================================

const commitmentSelect = `
	SELECT c.id, c.commitment_number, c.commitment_date, c.amount_cents, c.note, c.expense_id, e.protocol_number
	FROM commitments c
	JOIN expenses e ON e.id = c.expense_id
`

func (q *queries) FindCommitment(ctx context.Context, id budget.CommitmentID) (*budget.Commitment, error) {
	return q.queryCommitment(ctx, commitmentSelect+" WHERE c.id = ?", id)
}

func (q *queries) FindCommitmentByNumber(ctx context.Context, number string) (*budget.Commitment, error) {
	return q.queryCommitment(ctx, commitmentSelect+" WHERE c.commitment_number = ?", number)
}

func (q *queries) CommitmentNumberExists(ctx context.Context, number string) (bool, error) {
	return q.exists(ctx, "SELECT EXISTS(SELECT 1 FROM commitments WHERE commitment_number = ?)", number)
}

func (q *queries) ListCommitments(ctx context.Context) ([]budget.Commitment, error) {
	return q.queryCommitments(ctx, commitmentSelect+" ORDER BY c.id")
}

func (q *queries) ListCommitmentsByExpense(ctx context.Context, expenseID budget.ExpenseID) ([]budget.Commitment, error) {
	return q.queryCommitments(ctx, commitmentSelect+" WHERE c.expense_id = ? ORDER BY c.id", expenseID)
}

// SaveCommitment never rewrites expense_id on update.
func (q *queries) SaveCommitment(ctx context.Context, c *budget.Commitment) error {
	now := time.Now().UTC().Format(dateTimeLayout)

	if c.ID == 0 {
		res, err := q.q.ExecContext(ctx, `
			INSERT INTO commitments
			(commitment_number, commitment_date, amount_cents, note, expense_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.Number, c.Date.Format(dateLayout), c.Amount, c.Note, c.ExpenseID, now, now)
		if err != nil {
			return translate(err, budget.KindCommitment, c.Number)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read commitment id: %w", err)
		}
		c.ID = budget.CommitmentID(id)
		return nil
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE commitments SET
			commitment_number = ?, commitment_date = ?, amount_cents = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, c.Number, c.Date.Format(dateLayout), c.Amount, c.Note, now, c.ID)
	if err != nil {
		return translate(err, budget.KindCommitment, c.Number)
	}
	return requireRow(res, budget.KindCommitment, int64(c.ID))
}

func (q *queries) DeleteCommitment(ctx context.Context, id budget.CommitmentID) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM commitments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete commitment: %w", err)
	}
	return nil
}

func (q *queries) SumCommitments(ctx context.Context, expenseID budget.ExpenseID) (budget.Money, error) {
	return q.sum(ctx, "SELECT COALESCE(SUM(amount_cents), 0) FROM commitments WHERE expense_id = ?", expenseID)
}

func (q *queries) SumCommitmentsExcluding(ctx context.Context, expenseID budget.ExpenseID, exclude budget.CommitmentID) (budget.Money, error) {
	return q.sum(ctx, "SELECT COALESCE(SUM(amount_cents), 0) FROM commitments WHERE expense_id = ? AND id != ?", expenseID, exclude)
}

func (q *queries) HasPayments(ctx context.Context, id budget.CommitmentID) (bool, error) {
	return q.exists(ctx, "SELECT EXISTS(SELECT 1 FROM payments WHERE commitment_id = ?)", id)
}

func (q *queries) queryCommitment(ctx context.Context, query string, args ...any) (*budget.Commitment, error) {
	c, err := scanCommitment(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (q *queries) queryCommitments(ctx context.Context, query string, args ...any) ([]budget.Commitment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments: %w", err)
	}
	defer rows.Close()

	commitments := []budget.Commitment{}
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, *c)
	}
	return commitments, rows.Err()
}

func scanCommitment(row scanner) (*budget.Commitment, error) {
	var (
		c    budget.Commitment
		date string
	)
	err := row.Scan(&c.ID, &c.Number, &date, &c.Amount, &c.Note, &c.ExpenseID, &c.ExpenseProtocol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan commitment: %w", err)
	}
	if c.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("failed to parse commitment_date of commitment %d: %w", c.ID, err)
	}
	return &c, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentSelect = `
	SELECT p.id, p.payment_number, p.payment_date, p.amount_cents, p.note, p.commitment_id, c.commitment_number
	FROM payments p
	JOIN commitments c ON c.id = p.commitment_id
`

func (q *queries) FindPayment(ctx context.Context, id budget.PaymentID) (*budget.Payment, error) {
	return q.queryPayment(ctx, paymentSelect+" WHERE p.id = ?", id)
}

func (q *queries) FindPaymentByNumber(ctx context.Context, number string) (*budget.Payment, error) {
	return q.queryPayment(ctx, paymentSelect+" WHERE p.payment_number = ?", number)
}

func (q *queries) PaymentNumberExists(ctx context.Context, number string) (bool, error) {
	return q.exists(ctx, "SELECT EXISTS(SELECT 1 FROM payments WHERE payment_number = ?)", number)
}

func (q *queries) ListPayments(ctx context.Context) ([]budget.Payment, error) {
	return q.queryPayments(ctx, paymentSelect+" ORDER BY p.id")
}

func (q *queries) ListPaymentsByCommitment(ctx context.Context, commitmentID budget.CommitmentID) ([]budget.Payment, error) {
	return q.queryPayments(ctx, paymentSelect+" WHERE p.commitment_id = ? ORDER BY p.id", commitmentID)
}

func (q *queries) SavePayment(ctx context.Context, p *budget.Payment) error {
	now := time.Now().UTC().Format(dateTimeLayout)

	if p.ID == 0 {
		res, err := q.q.ExecContext(ctx, `
			INSERT INTO payments
			(payment_number, payment_date, amount_cents, note, commitment_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.Number, p.Date.Format(dateLayout), p.Amount, p.Note, p.CommitmentID, now, now)
		if err != nil {
			return translate(err, budget.KindPayment, p.Number)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read payment id: %w", err)
		}
		p.ID = budget.PaymentID(id)
		return nil
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE payments SET
			payment_number = ?, payment_date = ?, amount_cents = ?, note = ?, commitment_id = ?, updated_at = ?
		WHERE id = ?
	`, p.Number, p.Date.Format(dateLayout), p.Amount, p.Note, p.CommitmentID, now, p.ID)
	if err != nil {
		return translate(err, budget.KindPayment, p.Number)
	}
	return requireRow(res, budget.KindPayment, int64(p.ID))
}

func (q *queries) DeletePayment(ctx context.Context, id budget.PaymentID) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

func (q *queries) SumPayments(ctx context.Context, commitmentID budget.CommitmentID) (budget.Money, error) {
	return q.sum(ctx, "SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE commitment_id = ?", commitmentID)
}

func (q *queries) SumPaymentsExcluding(ctx context.Context, commitmentID budget.CommitmentID, exclude budget.PaymentID) (budget.Money, error) {
	return q.sum(ctx, "SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE commitment_id = ? AND id != ?", commitmentID, exclude)
}

func (q *queries) SumPaymentsByExpense(ctx context.Context, expenseID budget.ExpenseID) (budget.Money, error) {
	return q.sum(ctx, `
		SELECT COALESCE(SUM(p.amount_cents), 0)
		FROM payments p
		JOIN commitments c ON c.id = p.commitment_id
		WHERE c.expense_id = ?
	`, expenseID)
}

func (q *queries) queryPayment(ctx context.Context, query string, args ...any) (*budget.Payment, error) {
	p, err := scanPayment(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (q *queries) queryPayments(ctx context.Context, query string, args ...any) ([]budget.Payment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []budget.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row scanner) (*budget.Payment, error) {
	var (
		p    budget.Payment
		date string
	)
	err := row.Scan(&p.ID, &p.Number, &date, &p.Amount, &p.Note, &p.CommitmentID, &p.CommitmentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	if p.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("failed to parse payment_date of payment %d: %w", p.ID, err)
	}
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (q *queries) sum(ctx context.Context, query string, args ...any) (budget.Money, error) {
	var cents int64
	if err := q.q.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return budget.Zero, fmt.Errorf("failed to sum amounts: %w", err)
	}
	return budget.MoneyFromCents(cents), nil
}

func (q *queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := q.q.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

// translate maps a unique-constraint failure on a business key to the
// engine's DuplicateKeyError. The engine checks keys first; this covers a
// writer that bypassed it.
func translate(err error, kind budget.Kind, key string) error {
	if isUniqueConstraintError(err) {
		return &budget.DuplicateKeyError{Kind: kind, Key: key}
	}
	return fmt.Errorf("failed to save %s: %w", kind, err)
}

func requireRow(res sql.Result, kind budget.Kind, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &budget.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
