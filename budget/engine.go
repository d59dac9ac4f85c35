/*
engine.go - Allocation consistency checks

PURPOSE:
  Decides whether a single create/update/delete keeps the hierarchy
  consistent. Each check reads the current state from the store it was
  built over, compares it with the proposed values, and returns nil or a
  typed rejection from errors.go. Checks never write.

CRITICAL INVARIANTS:
  1. Σ commitments of an expense <= expense amount
  2. Σ payments of a commitment  <= commitment amount
  3. Business keys are unique per tier
  4. Expenses with commitments and commitments with payments are not
     deleted (no cascade)

SIBLING SUMS:
  Updates sum siblings with the excluding query rather than subtracting
  the old amount from the full sum. One formula, one code path.

STATELESS:
  Sums are never cached between calls. The service builds an Engine over
  the transaction-scoped store, so the sums it reads are the ones the
  write will be committed against.
*/
package budget

import (
	"context"
	"fmt"
)

// Engine validates mutations against the state held by a Store.
type Engine struct {
	store Store
}

// NewEngine builds an engine over store. Pass the store handed to
// TxStore.WithTx so the checks see the same snapshot as the write.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// =============================================================================
// EXPENSE
// =============================================================================

// CheckCreateExpense rejects a protocol number already in use. An expense
// has no parent, so its amount is not bounded.
func (e *Engine) CheckCreateExpense(ctx context.Context, exp Expense) error {
	exists, err := e.store.ExpenseProtocolExists(ctx, exp.ProtocolNumber)
	if err != nil {
		return fmt.Errorf("check protocol number: %w", err)
	}
	if exists {
		return &DuplicateKeyError{Kind: KindExpense, Key: exp.ProtocolNumber}
	}
	return nil
}

// CheckUpdateExpense validates replacing expense id with exp and returns
// the current record. The amount floor is the commitment total before the
// update is applied.
func (e *Engine) CheckUpdateExpense(ctx context.Context, id ExpenseID, exp Expense) (*Expense, error) {
	current, err := e.expense(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.ProtocolNumber != current.ProtocolNumber {
		other, err := e.store.FindExpenseByProtocol(ctx, exp.ProtocolNumber)
		if err != nil {
			return nil, fmt.Errorf("check protocol number: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, &DuplicateKeyError{Kind: KindExpense, Key: exp.ProtocolNumber}
		}
	}

	committed, err := e.store.SumCommitments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sum commitments of expense %d: %w", id, err)
	}
	if exp.Amount.LessThan(committed) {
		return nil, &FloorViolationError{
			Kind:      KindExpense,
			ID:        int64(id),
			ChildKind: KindCommitment,
			Floor:     committed,
			Requested: exp.Amount,
		}
	}
	return current, nil
}

// CheckDeleteExpense blocks deleting an expense that has commitments.
func (e *Engine) CheckDeleteExpense(ctx context.Context, id ExpenseID) error {
	if _, err := e.expense(ctx, id); err != nil {
		return err
	}
	has, err := e.store.HasCommitments(ctx, id)
	if err != nil {
		return fmt.Errorf("check commitments of expense %d: %w", id, err)
	}
	if has {
		return &StructuralConflictError{Kind: KindExpense, ID: int64(id), ChildKind: KindCommitment}
	}
	return nil
}

// =============================================================================
// COMMITMENT
// =============================================================================

// CheckCreateCommitment validates a new commitment against its expense.
func (e *Engine) CheckCreateCommitment(ctx context.Context, c Commitment) error {
	parent, err := e.expense(ctx, c.ExpenseID)
	if err != nil {
		return err
	}

	exists, err := e.store.CommitmentNumberExists(ctx, c.Number)
	if err != nil {
		return fmt.Errorf("check commitment number: %w", err)
	}
	if exists {
		return &DuplicateKeyError{Kind: KindCommitment, Key: c.Number}
	}

	allocated, err := e.store.SumCommitments(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("sum commitments of expense %d: %w", parent.ID, err)
	}
	return checkCeiling(KindCommitment, KindExpense, int64(parent.ID), parent.Amount, allocated, c.Amount)
}

// CheckUpdateCommitment validates replacing commitment id with c and
// returns the current record. c.ExpenseID is ignored: the parent of a
// commitment never changes.
func (e *Engine) CheckUpdateCommitment(ctx context.Context, id CommitmentID, c Commitment) (*Commitment, error) {
	current, err := e.commitment(ctx, id)
	if err != nil {
		return nil, err
	}
	parent, err := e.expense(ctx, current.ExpenseID)
	if err != nil {
		return nil, err
	}

	if c.Number != current.Number {
		other, err := e.store.FindCommitmentByNumber(ctx, c.Number)
		if err != nil {
			return nil, fmt.Errorf("check commitment number: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, &DuplicateKeyError{Kind: KindCommitment, Key: c.Number}
		}
	}

	paid, err := e.store.SumPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sum payments of commitment %d: %w", id, err)
	}
	if c.Amount.LessThan(paid) {
		return nil, &FloorViolationError{
			Kind:      KindCommitment,
			ID:        int64(id),
			ChildKind: KindPayment,
			Floor:     paid,
			Requested: c.Amount,
		}
	}

	siblings, err := e.store.SumCommitmentsExcluding(ctx, parent.ID, id)
	if err != nil {
		return nil, fmt.Errorf("sum sibling commitments of %d: %w", id, err)
	}
	if err := checkCeiling(KindCommitment, KindExpense, int64(parent.ID), parent.Amount, siblings, c.Amount); err != nil {
		return nil, err
	}
	return current, nil
}

// CheckDeleteCommitment blocks deleting a commitment that has payments.
func (e *Engine) CheckDeleteCommitment(ctx context.Context, id CommitmentID) error {
	if _, err := e.commitment(ctx, id); err != nil {
		return err
	}
	has, err := e.store.HasPayments(ctx, id)
	if err != nil {
		return fmt.Errorf("check payments of commitment %d: %w", id, err)
	}
	if has {
		return &StructuralConflictError{Kind: KindCommitment, ID: int64(id), ChildKind: KindPayment}
	}
	return nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// CheckCreatePayment validates a new payment against its commitment.
func (e *Engine) CheckCreatePayment(ctx context.Context, p Payment) error {
	parent, err := e.commitment(ctx, p.CommitmentID)
	if err != nil {
		return err
	}

	exists, err := e.store.PaymentNumberExists(ctx, p.Number)
	if err != nil {
		return fmt.Errorf("check payment number: %w", err)
	}
	if exists {
		return &DuplicateKeyError{Kind: KindPayment, Key: p.Number}
	}

	a, err := e.attach(ctx, parent, 0)
	if err != nil {
		return err
	}
	return a.admit(p.Amount)
}

// CheckUpdatePayment validates replacing payment id with p and returns the
// current record. A zero p.CommitmentID keeps the current parent.
//
// Re-parenting is two steps. Detaching from the old commitment only lowers
// its payment sum, so nothing there can be violated. Attaching to the new
// commitment counts all of its payments, since this one is not among them
// yet. Without re-parenting the payment is re-attached to its own
// commitment with its old amount excluded.
func (e *Engine) CheckUpdatePayment(ctx context.Context, id PaymentID, p Payment) (*Payment, error) {
	current, err := e.payment(ctx, id)
	if err != nil {
		return nil, err
	}

	target, exclude := current.CommitmentID, id
	if p.CommitmentID != 0 && p.CommitmentID != current.CommitmentID {
		target, exclude = p.CommitmentID, 0
	}
	parent, err := e.commitment(ctx, target)
	if err != nil {
		return nil, err
	}

	if p.Number != current.Number {
		other, err := e.store.FindPaymentByNumber(ctx, p.Number)
		if err != nil {
			return nil, fmt.Errorf("check payment number: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, &DuplicateKeyError{Kind: KindPayment, Key: p.Number}
		}
	}

	a, err := e.attach(ctx, parent, exclude)
	if err != nil {
		return nil, err
	}
	if err := a.admit(p.Amount); err != nil {
		return nil, err
	}
	return current, nil
}

// CheckDeletePayment only requires the payment to exist. Payments are
// leaves.
func (e *Engine) CheckDeletePayment(ctx context.Context, id PaymentID) error {
	_, err := e.payment(ctx, id)
	return err
}

// allocation is the ceiling context a payment is validated in: one
// commitment and what its other payments already hold.
type allocation struct {
	parent    *Commitment
	allocated Money
}

func (e *Engine) attach(ctx context.Context, parent *Commitment, exclude PaymentID) (allocation, error) {
	var (
		sum Money
		err error
	)
	if exclude == 0 {
		sum, err = e.store.SumPayments(ctx, parent.ID)
	} else {
		sum, err = e.store.SumPaymentsExcluding(ctx, parent.ID, exclude)
	}
	if err != nil {
		return allocation{}, fmt.Errorf("sum payments of commitment %d: %w", parent.ID, err)
	}
	return allocation{parent: parent, allocated: sum}, nil
}

func (a allocation) admit(amount Money) error {
	return checkCeiling(KindPayment, KindCommitment, int64(a.parent.ID), a.parent.Amount, a.allocated, amount)
}

// =============================================================================
// HELPERS
// =============================================================================

// checkCeiling accepts allocated+requested == ceiling; only strict excess
// is rejected.
func checkCeiling(kind, parentKind Kind, parentID int64, ceiling, allocated, requested Money) error {
	if allocated.Add(requested).GreaterThan(ceiling) {
		return &CeilingExceededError{
			Kind:       kind,
			ParentKind: parentKind,
			ParentID:   parentID,
			Ceiling:    ceiling,
			Allocated:  allocated,
			Requested:  requested,
		}
	}
	return nil
}

func (e *Engine) expense(ctx context.Context, id ExpenseID) (*Expense, error) {
	exp, err := e.store.FindExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find expense %d: %w", id, err)
	}
	if exp == nil {
		return nil, &NotFoundError{Kind: KindExpense, ID: int64(id)}
	}
	return exp, nil
}

func (e *Engine) commitment(ctx context.Context, id CommitmentID) (*Commitment, error) {
	c, err := e.store.FindCommitment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find commitment %d: %w", id, err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: KindCommitment, ID: int64(id)}
	}
	return c, nil
}

func (e *Engine) payment(ctx context.Context, id PaymentID) (*Payment, error) {
	p, err := e.store.FindPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payment %d: %w", id, err)
	}
	if p == nil {
		return nil, &NotFoundError{Kind: KindPayment, ID: int64(id)}
	}
	return p, nil
}
