/*
status.go - Derived execution status of an Expense

PURPOSE:
  Reports where an Expense stands in its execution lifecycle. The status
  is a pure function of the current commitment and payment sums, so it is
  recomputed on every read and can never drift out of sync.

RULES (ordered, first match wins):
  C = Σ commitments of the expense, P = Σ payments over those commitments

  1. C == 0              → awaiting_commitment
  2. C <  expense amount → partially_committed
  3. P == 0              → awaiting_payment
  4. P <  expense amount → partially_paid
  5. otherwise           → paid

  P is compared with the expense amount, not with C: the status answers
  "how much of the expense has been paid".
*/
package budget

import (
	"context"
	"fmt"
)

type Status string

const (
	StatusAwaitingCommitment Status = "awaiting_commitment"
	StatusPartiallyCommitted Status = "partially_committed"
	StatusAwaitingPayment    Status = "awaiting_payment"
	StatusPartiallyPaid      Status = "partially_paid"
	StatusPaid               Status = "paid"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusAwaitingCommitment,
	StatusPartiallyCommitted,
	StatusAwaitingPayment,
	StatusPartiallyPaid,
	StatusPaid,
}

// Rank is the position of s in the lifecycle, or -1 if unknown.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// ResolveStatus applies the status rules to already-computed sums.
func ResolveStatus(committed, paid, expenseAmount Money) Status {
	switch {
	case committed.IsZero():
		return StatusAwaitingCommitment
	case committed.LessThan(expenseAmount):
		return StatusPartiallyCommitted
	case paid.IsZero():
		return StatusAwaitingPayment
	case paid.LessThan(expenseAmount):
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// Resolver reads the sums for an expense and resolves its status.
type Resolver struct {
	commitments CommitmentStore
	payments    PaymentStore
}

func NewResolver(store Store) *Resolver {
	return &Resolver{commitments: store, payments: store}
}

// Resolve computes the status of expense id with the given amount.
func (r *Resolver) Resolve(ctx context.Context, id ExpenseID, amount Money) (Status, error) {
	committed, err := r.commitments.SumCommitments(ctx, id)
	if err != nil {
		return "", fmt.Errorf("sum commitments of expense %d: %w", id, err)
	}
	paid, err := r.payments.SumPaymentsByExpense(ctx, id)
	if err != nil {
		return "", fmt.Errorf("sum payments of expense %d: %w", id, err)
	}
	return ResolveStatus(committed, paid, amount), nil
}
