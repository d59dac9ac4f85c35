// Package store provides Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	expenses    map[budget.ExpenseID]budget.Expense
	commitments map[budget.CommitmentID]budget.Commitment
	payments    map[budget.PaymentID]budget.Payment
	nextID      int64
}

func NewMemory() *Memory {
	return &Memory{
		expenses:    make(map[budget.ExpenseID]budget.Expense),
		commitments: make(map[budget.CommitmentID]budget.Commitment),
		payments:    make(map[budget.PaymentID]budget.Payment),
	}
}

// ids are shared across tiers; they only need to be unique and ordered.
func (m *Memory) newID() int64 {
	m.nextID++
	return m.nextID
}

// -----------------------------------------------------------------------------
// Expenses
// -----------------------------------------------------------------------------

func (m *Memory) FindExpense(_ context.Context, id budget.ExpenseID) (*budget.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) FindExpenseByProtocol(_ context.Context, protocol string) (*budget.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.expenses {
		if e.ProtocolNumber == protocol {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) ExpenseProtocolExists(ctx context.Context, protocol string) (bool, error) {
	e, err := m.FindExpenseByProtocol(ctx, protocol)
	return e != nil, err
}

func (m *Memory) ListExpenses(_ context.Context) ([]budget.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.expenses), nil
}

func (m *Memory) SaveExpense(_ context.Context, e *budget.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = budget.ExpenseID(m.newID())
	}
	stored := *e
	stored.Status = ""
	m.expenses[e.ID] = stored
	return nil
}

func (m *Memory) DeleteExpense(_ context.Context, id budget.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expenses, id)
	return nil
}

func (m *Memory) HasCommitments(_ context.Context, id budget.ExpenseID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.commitments {
		if c.ExpenseID == id {
			return true, nil
		}
	}
	return false, nil
}

// -----------------------------------------------------------------------------
// Commitments
// -----------------------------------------------------------------------------

func (m *Memory) FindCommitment(_ context.Context, id budget.CommitmentID) (*budget.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commitments[id]
	if !ok {
		return nil, nil
	}
	c = m.withExpenseProtocol(c)
	return &c, nil
}

func (m *Memory) FindCommitmentByNumber(_ context.Context, number string) (*budget.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.commitments {
		if c.Number == number {
			c = m.withExpenseProtocol(c)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) CommitmentNumberExists(ctx context.Context, number string) (bool, error) {
	c, err := m.FindCommitmentByNumber(ctx, number)
	return c != nil, err
}

func (m *Memory) ListCommitments(ctx context.Context) ([]budget.Commitment, error) {
	return m.filterCommitments(func(budget.Commitment) bool { return true }), nil
}

func (m *Memory) ListCommitmentsByExpense(_ context.Context, expenseID budget.ExpenseID) ([]budget.Commitment, error) {
	return m.filterCommitments(func(c budget.Commitment) bool { return c.ExpenseID == expenseID }), nil
}

func (m *Memory) SaveCommitment(_ context.Context, c *budget.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = budget.CommitmentID(m.newID())
	} else if old, ok := m.commitments[c.ID]; ok {
		c.ExpenseID = old.ExpenseID
	}
	stored := *c
	stored.ExpenseProtocol = ""
	m.commitments[c.ID] = stored
	return nil
}

func (m *Memory) DeleteCommitment(_ context.Context, id budget.CommitmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commitments, id)
	return nil
}

func (m *Memory) SumCommitments(ctx context.Context, expenseID budget.ExpenseID) (budget.Money, error) {
	return m.SumCommitmentsExcluding(ctx, expenseID, 0)
}

func (m *Memory) SumCommitmentsExcluding(_ context.Context, expenseID budget.ExpenseID, exclude budget.CommitmentID) (budget.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := budget.Zero
	for id, c := range m.commitments {
		if c.ExpenseID == expenseID && id != exclude {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) HasPayments(_ context.Context, id budget.CommitmentID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.CommitmentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) filterCommitments(keep func(budget.Commitment) bool) []budget.Commitment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []budget.Commitment{}
	for _, c := range sortedValues(m.commitments) {
		if keep(c) {
			result = append(result, m.withExpenseProtocol(c))
		}
	}
	return result
}

func (m *Memory) withExpenseProtocol(c budget.Commitment) budget.Commitment {
	c.ExpenseProtocol = m.expenses[c.ExpenseID].ProtocolNumber
	return c
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

func (m *Memory) FindPayment(_ context.Context, id budget.PaymentID) (*budget.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	p = m.withCommitmentNumber(p)
	return &p, nil
}

func (m *Memory) FindPaymentByNumber(_ context.Context, number string) (*budget.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.Number == number {
			p = m.withCommitmentNumber(p)
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) PaymentNumberExists(ctx context.Context, number string) (bool, error) {
	p, err := m.FindPaymentByNumber(ctx, number)
	return p != nil, err
}

func (m *Memory) ListPayments(_ context.Context) ([]budget.Payment, error) {
	return m.filterPayments(func(budget.Payment) bool { return true }), nil
}

func (m *Memory) ListPaymentsByCommitment(_ context.Context, commitmentID budget.CommitmentID) ([]budget.Payment, error) {
	return m.filterPayments(func(p budget.Payment) bool { return p.CommitmentID == commitmentID }), nil
}

func (m *Memory) SavePayment(_ context.Context, p *budget.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = budget.PaymentID(m.newID())
	}
	stored := *p
	stored.CommitmentNumber = ""
	m.payments[p.ID] = stored
	return nil
}

func (m *Memory) DeletePayment(_ context.Context, id budget.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payments, id)
	return nil
}

func (m *Memory) SumPayments(ctx context.Context, commitmentID budget.CommitmentID) (budget.Money, error) {
	return m.SumPaymentsExcluding(ctx, commitmentID, 0)
}

func (m *Memory) SumPaymentsExcluding(_ context.Context, commitmentID budget.CommitmentID, exclude budget.PaymentID) (budget.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := budget.Zero
	for id, p := range m.payments {
		if p.CommitmentID == commitmentID && id != exclude {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) SumPaymentsByExpense(_ context.Context, expenseID budget.ExpenseID) (budget.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := budget.Zero
	for _, p := range m.payments {
		if m.commitments[p.CommitmentID].ExpenseID == expenseID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (m *Memory) filterPayments(keep func(budget.Payment) bool) []budget.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []budget.Payment{}
	for _, p := range sortedValues(m.payments) {
		if keep(p) {
			result = append(result, m.withCommitmentNumber(p))
		}
	}
	return result
}

func (m *Memory) withCommitmentNumber(p budget.Payment) budget.Payment {
	p.CommitmentNumber = m.commitments[p.CommitmentID].Number
	return p
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.expenses)
	clear(m.commitments)
	clear(m.payments)
	m.nextID = 0
	return nil
}

// sortedValues returns map values ordered by id.
func sortedValues[K ~int64, V any](in map[K]V) []V {
	keys := slices.Sorted(maps.Keys(in))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, in[k])
	}
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// Transactions are serialized; rollback restores a snapshot taken before fn.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(budget.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

// Reset waits for any in-flight transaction, so a later rollback cannot
// bring back the records it dropped.
func (tm *TxMemory) Reset(ctx context.Context) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()
	return tm.Memory.Reset(ctx)
}

type memorySnapshot struct {
	expenses    map[budget.ExpenseID]budget.Expense
	commitments map[budget.CommitmentID]budget.Commitment
	payments    map[budget.PaymentID]budget.Payment
	nextID      int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return memorySnapshot{
		expenses:    maps.Clone(tm.expenses),
		commitments: maps.Clone(tm.commitments),
		payments:    maps.Clone(tm.payments),
		nextID:      tm.nextID,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.expenses = s.expenses
	tm.commitments = s.commitments
	tm.payments = s.payments
	tm.nextID = s.nextID
}

var _ budget.TxStore = (*TxMemory)(nil)
