/*
Package budget provides the budget execution engine.

PURPOSE:
  Tracks how a budgeted obligation is executed through a three-tier
  allocation hierarchy. An Expense is earmarked by Commitments, and each
  Commitment is disbursed by Payments. The engine keeps the monetary sums
  consistent across the hierarchy on every mutation and derives where an
  Expense stands in its execution lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A non-negative fixed-point amount with two fractional digits
  - Expense, Commitment, Payment: The three tiers of the hierarchy
  - Status: Derived execution status of an Expense (never stored)

HIERARCHY:

  Expense (amount 1000.00)
    ├── Commitment A (600.00)   Σ commitments <= expense amount
    │     ├── Payment 1 (400.00)  Σ payments <= commitment amount
    │     └── Payment 2 (200.00)
    └── Commitment B (400.00)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for every comparison
  2. Live aggregates: Sums are re-read from the store on every validation
  3. Type Safety: Distinct ID types per tier prevent mixing parents up

SEE ALSO:
  - engine.go: Floor/ceiling/uniqueness checks
  - status.go: Status resolution
  - service.go: Create/update/delete orchestration
*/
package budget

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identifiers are server-assigned and ordered. Zero means "not yet stored".
type (
	ExpenseID    int64
	CommitmentID int64
	PaymentID    int64
)

// Kind names an entity tier. Used in errors and logs.
type Kind string

const (
	KindExpense    Kind = "expense"
	KindCommitment Kind = "commitment"
	KindPayment    Kind = "payment"
)

// =============================================================================
// EXPENSE - Root of the hierarchy
// =============================================================================

// Expense is a budgeted obligation.
//
// INVARIANT: Amount >= Σ Commitment.Amount for its commitments.
type Expense struct {
	ID             ExpenseID
	ProtocolNumber string // business key, unique
	Category       string
	ProtocolDate   time.Time
	DueDate        time.Time
	Creditor       string
	Description    string
	Amount         Money

	// Status is derived on read. It is never persisted.
	Status Status
}

// =============================================================================
// COMMITMENT - Earmarked portion of an expense
// =============================================================================

// Commitment reserves part of an Expense's amount for future payment.
// ExpenseID is set once at creation.
//
// INVARIANTS:
//   - Amount >= Σ Payment.Amount for its payments
//   - Σ sibling amounts + Amount <= parent Expense.Amount
type Commitment struct {
	ID        CommitmentID
	Number    string // business key, unique
	Date      time.Time
	Amount    Money
	Note      string
	ExpenseID ExpenseID

	// ExpenseProtocol is the parent's protocol number, filled on read.
	ExpenseProtocol string
}

// =============================================================================
// PAYMENT - Disbursement against a commitment
// =============================================================================

// Payment is an actual disbursement. It is the only tier whose parent
// link may change after creation.
type Payment struct {
	ID           PaymentID
	Number       string // business key, unique
	Date         time.Time
	Amount       Money
	Note         string
	CommitmentID CommitmentID

	// CommitmentNumber is the parent's business key, filled on read.
	CommitmentNumber string
}

// =============================================================================
// SUMMARY - Dashboard totals
// =============================================================================

// Summary aggregates every amount in the store.
type Summary struct {
	ExpenseCount     int
	CommitmentCount  int
	PaymentCount     int
	TotalExpenses    Money
	TotalCommitments Money
	TotalPayments    Money
	ByStatus         map[Status]int
}

// CalendarDate truncates t to midnight UTC. Commitment and payment dates
// are calendar dates; the time of day is dropped.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
