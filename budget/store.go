/*
store.go - Persistence interface for the three tiers

PURPOSE:
  Defines the interface between the engine and the database. The engine
  only needs point lookups, business-key lookups, aggregate sums scoped by
  parent, and child-existence checks. Everything else is plumbing.

LOOKUP CONTRACT:
  Find* methods return (nil, nil) when the row does not exist. Callers
  turn that into a NotFoundError; the store does not decide what "missing"
  means for the operation.

SUM CONTRACT:
  Sum* methods return Zero when no rows match, never an error.
  Sum*Excluding skips exactly one child, so the caller can validate an
  update without double-counting the child's old amount.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via mattn/go-sqlite3
  - budget/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: The only consumer of the sum queries
  - service.go: Opens the transaction around check + save
*/
package budget

import "context"

// ExpenseStore persists Expenses.
type ExpenseStore interface {
	FindExpense(ctx context.Context, id ExpenseID) (*Expense, error)
	FindExpenseByProtocol(ctx context.Context, protocol string) (*Expense, error)
	ExpenseProtocolExists(ctx context.Context, protocol string) (bool, error)
	ListExpenses(ctx context.Context) ([]Expense, error)

	// SaveExpense inserts when e.ID is zero, assigning e.ID, and updates
	// otherwise.
	SaveExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, id ExpenseID) error

	HasCommitments(ctx context.Context, id ExpenseID) (bool, error)
}

// CommitmentStore persists Commitments.
type CommitmentStore interface {
	FindCommitment(ctx context.Context, id CommitmentID) (*Commitment, error)
	FindCommitmentByNumber(ctx context.Context, number string) (*Commitment, error)
	CommitmentNumberExists(ctx context.Context, number string) (bool, error)
	ListCommitments(ctx context.Context) ([]Commitment, error)
	ListCommitmentsByExpense(ctx context.Context, expenseID ExpenseID) ([]Commitment, error)

	// SaveCommitment inserts when c.ID is zero and updates otherwise.
	// ExpenseID is never changed by an update.
	SaveCommitment(ctx context.Context, c *Commitment) error
	DeleteCommitment(ctx context.Context, id CommitmentID) error

	SumCommitments(ctx context.Context, expenseID ExpenseID) (Money, error)
	SumCommitmentsExcluding(ctx context.Context, expenseID ExpenseID, exclude CommitmentID) (Money, error)
	HasPayments(ctx context.Context, id CommitmentID) (bool, error)
}

// PaymentStore persists Payments.
type PaymentStore interface {
	FindPayment(ctx context.Context, id PaymentID) (*Payment, error)
	FindPaymentByNumber(ctx context.Context, number string) (*Payment, error)
	PaymentNumberExists(ctx context.Context, number string) (bool, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	ListPaymentsByCommitment(ctx context.Context, commitmentID CommitmentID) ([]Payment, error)

	// SavePayment inserts when p.ID is zero and updates otherwise,
	// including CommitmentID.
	SavePayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error

	SumPayments(ctx context.Context, commitmentID CommitmentID) (Money, error)
	SumPaymentsExcluding(ctx context.Context, commitmentID CommitmentID, exclude PaymentID) (Money, error)

	// SumPaymentsByExpense sums payments over all commitments of an expense.
	SumPaymentsByExpense(ctx context.Context, expenseID ExpenseID) (Money, error)
}

// Store is the full ledger store.
type Store interface {
	ExpenseStore
	CommitmentStore
	PaymentStore
}

// =============================================================================
// TRANSACTIONAL STORE - Read-validate-write as one unit
// =============================================================================

// TxStore wraps Store with transaction support.
//
// WithTx must isolate fn from concurrent WithTx calls at least to the point
// where two mutations against the same parent cannot interleave between
// the sum read and the write. If fn returns an error nothing is written.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter clears every tier. Only used by demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}
