/*
service.go - Allocation service façade

PURPOSE:
  Orchestrates the consistency engine and the status resolver per tier.
  This is the API the transport layer calls.

REQUEST FLOW (mutations):
  1. Normalize input (trim business keys, fill generated keys)
  2. Open a store transaction
  3. Engine check against fresh sums
  4. Save or delete
  5. Commit, or roll back on any error (no partial writes)

REQUEST FLOW (reads):
  Expense reads resolve Status from the current sums every time.

ERRORS:
  Rejections from engine.go pass through unchanged so callers can match
  them with errors.Is/As. Store failures are wrapped with context.
*/
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Service exposes create/update/delete/query per tier.
type Service struct {
	store  TxStore
	keys   KeyGenerator
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithKeyGenerator replaces the default RandomKeys generator.
func WithKeyGenerator(k KeyGenerator) Option {
	return func(s *Service) { s.keys = k }
}

// WithLogger sets the logger for accepted and rejected mutations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		keys:   RandomKeys{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// EXPENSES
// =============================================================================

// ListExpenses returns every expense with its resolved status.
func (s *Service) ListExpenses(ctx context.Context) ([]Expense, error) {
	expenses, err := s.store.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	resolver := NewResolver(s.store)
	for i := range expenses {
		if expenses[i].Status, err = resolver.Resolve(ctx, expenses[i].ID, expenses[i].Amount); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// GetExpense returns one expense with its resolved status.
func (s *Service) GetExpense(ctx context.Context, id ExpenseID) (*Expense, error) {
	exp, err := s.store.FindExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find expense %d: %w", id, err)
	}
	if exp == nil {
		return nil, &NotFoundError{Kind: KindExpense, ID: int64(id)}
	}
	if exp.Status, err = NewResolver(s.store).Resolve(ctx, exp.ID, exp.Amount); err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Service) CreateExpense(ctx context.Context, exp Expense) (*Expense, error) {
	exp.ID = 0
	exp.ProtocolNumber = strings.TrimSpace(exp.ProtocolNumber)
	if err := exp.Amount.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if exp.ProtocolNumber == "" {
			key, err := freshKey(ctx, KindExpense, s.keys.ProtocolNumber, tx.ExpenseProtocolExists)
			if err != nil {
				return err
			}
			exp.ProtocolNumber = key
		}
		if err := NewEngine(tx).CheckCreateExpense(ctx, exp); err != nil {
			return err
		}
		if err := tx.SaveExpense(ctx, &exp); err != nil {
			return fmt.Errorf("save expense: %w", err)
		}
		status, err := NewResolver(tx).Resolve(ctx, exp.ID, exp.Amount)
		exp.Status = status
		return err
	})
	s.logMutation(ctx, opCreate, KindExpense, err, "id", exp.ID, "protocol", exp.ProtocolNumber, "amount", exp.Amount)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// UpdateExpense replaces every attribute of expense id. A blank protocol
// number keeps the current one.
func (s *Service) UpdateExpense(ctx context.Context, id ExpenseID, exp Expense) (*Expense, error) {
	exp.ID = id
	exp.ProtocolNumber = strings.TrimSpace(exp.ProtocolNumber)
	if err := exp.Amount.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx Store) error {
		if exp.ProtocolNumber == "" {
			current, err := tx.FindExpense(ctx, id)
			if err != nil {
				return fmt.Errorf("find expense %d: %w", id, err)
			}
			if current != nil {
				exp.ProtocolNumber = current.ProtocolNumber
			}
		}
		if _, err := NewEngine(tx).CheckUpdateExpense(ctx, id, exp); err != nil {
			return err
		}
		if err := tx.SaveExpense(ctx, &exp); err != nil {
			return fmt.Errorf("save expense %d: %w", id, err)
		}
		status, err := NewResolver(tx).Resolve(ctx, exp.ID, exp.Amount)
		exp.Status = status
		return err
	})
	s.logMutation(ctx, opUpdate, KindExpense, err, "id", id, "protocol", exp.ProtocolNumber, "amount", exp.Amount)
	if err != nil {
		return nil, err
	}
	return &exp, nil
}

// DeleteExpense removes an expense that has no commitments.
func (s *Service) DeleteExpense(ctx context.Context, id ExpenseID) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := NewEngine(tx).CheckDeleteExpense(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteExpense(ctx, id); err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
		return nil
	})
	s.logMutation(ctx, opDelete, KindExpense, err, "id", id)
	return err
}

// =============================================================================
// COMMITMENTS
// =============================================================================

func (s *Service) ListCommitments(ctx context.Context) ([]Commitment, error) {
	cs, err := s.store.ListCommitments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	return cs, nil
}

// ListCommitmentsByExpense returns the commitments of one expense. An
// unknown expense yields a NotFoundError rather than an empty list.
func (s *Service) ListCommitmentsByExpense(ctx context.Context, expenseID ExpenseID) ([]Commitment, error) {
	exp, err := s.store.FindExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("find expense %d: %w", expenseID, err)
	}
	if exp == nil {
		return nil, &NotFoundError{Kind: KindExpense, ID: int64(expenseID)}
	}
	cs, err := s.store.ListCommitmentsByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list commitments of expense %d: %w", expenseID, err)
	}
	return cs, nil
}

func (s *Service) GetCommitment(ctx context.Context, id CommitmentID) (*Commitment, error) {
	c, err := s.store.FindCommitment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find commitment %d: %w", id, err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: KindCommitment, ID: int64(id)}
	}
	return c, nil
}

func (s *Service) CreateCommitment(ctx context.Context, c Commitment) (*Commitment, error) {
	c.ID = 0
	c.Number = strings.TrimSpace(c.Number)
	c.Date = CalendarDate(c.Date)
	if err := c.Amount.Validate(); err != nil {
		return nil, err
	}
	if c.ExpenseID == 0 {
		return nil, &InvalidInputError{Field: "expense_id", Reason: "required"}
	}

	var created *Commitment
	err := s.store.WithTx(ctx, func(tx Store) error {
		if c.Number == "" {
			key, err := freshKey(ctx, KindCommitment, s.keys.CommitmentNumber, tx.CommitmentNumberExists)
			if err != nil {
				return err
			}
			c.Number = key
		}
		if err := NewEngine(tx).CheckCreateCommitment(ctx, c); err != nil {
			return err
		}
		if err := tx.SaveCommitment(ctx, &c); err != nil {
			return fmt.Errorf("save commitment: %w", err)
		}
		var err error
		created, err = tx.FindCommitment(ctx, c.ID)
		return err
	})
	s.logMutation(ctx, opCreate, KindCommitment, err, "id", c.ID, "number", c.Number, "expense_id", c.ExpenseID, "amount", c.Amount)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateCommitment replaces number, date, amount and note. The parent
// expense is kept; a blank number keeps the current one.
func (s *Service) UpdateCommitment(ctx context.Context, id CommitmentID, c Commitment) (*Commitment, error) {
	c.Number = strings.TrimSpace(c.Number)
	c.Date = CalendarDate(c.Date)
	if err := c.Amount.Validate(); err != nil {
		return nil, err
	}

	var updated *Commitment
	err := s.store.WithTx(ctx, func(tx Store) error {
		if c.Number == "" {
			current, err := tx.FindCommitment(ctx, id)
			if err != nil {
				return fmt.Errorf("find commitment %d: %w", id, err)
			}
			if current != nil {
				c.Number = current.Number
			}
		}
		current, err := NewEngine(tx).CheckUpdateCommitment(ctx, id, c)
		if err != nil {
			return err
		}
		c.ID = id
		c.ExpenseID = current.ExpenseID
		if err := tx.SaveCommitment(ctx, &c); err != nil {
			return fmt.Errorf("save commitment %d: %w", id, err)
		}
		updated, err = tx.FindCommitment(ctx, id)
		return err
	})
	s.logMutation(ctx, opUpdate, KindCommitment, err, "id", id, "number", c.Number, "amount", c.Amount)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCommitment removes a commitment that has no payments.
func (s *Service) DeleteCommitment(ctx context.Context, id CommitmentID) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := NewEngine(tx).CheckDeleteCommitment(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteCommitment(ctx, id); err != nil {
			return fmt.Errorf("delete commitment %d: %w", id, err)
		}
		return nil
	})
	s.logMutation(ctx, opDelete, KindCommitment, err, "id", id)
	return err
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Service) ListPayments(ctx context.Context) ([]Payment, error) {
	ps, err := s.store.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return ps, nil
}

// ListPaymentsByCommitment returns the payments of one commitment. An
// unknown commitment yields a NotFoundError rather than an empty list.
func (s *Service) ListPaymentsByCommitment(ctx context.Context, commitmentID CommitmentID) ([]Payment, error) {
	c, err := s.store.FindCommitment(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("find commitment %d: %w", commitmentID, err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: KindCommitment, ID: int64(commitmentID)}
	}
	ps, err := s.store.ListPaymentsByCommitment(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments of commitment %d: %w", commitmentID, err)
	}
	return ps, nil
}

func (s *Service) GetPayment(ctx context.Context, id PaymentID) (*Payment, error) {
	p, err := s.store.FindPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payment %d: %w", id, err)
	}
	if p == nil {
		return nil, &NotFoundError{Kind: KindPayment, ID: int64(id)}
	}
	return p, nil
}

func (s *Service) CreatePayment(ctx context.Context, p Payment) (*Payment, error) {
	p.ID = 0
	p.Number = strings.TrimSpace(p.Number)
	p.Date = CalendarDate(p.Date)
	if err := p.Amount.Validate(); err != nil {
		return nil, err
	}
	if p.CommitmentID == 0 {
		return nil, &InvalidInputError{Field: "commitment_id", Reason: "required"}
	}

	var created *Payment
	err := s.store.WithTx(ctx, func(tx Store) error {
		if p.Number == "" {
			key, err := freshKey(ctx, KindPayment, s.keys.PaymentNumber, tx.PaymentNumberExists)
			if err != nil {
				return err
			}
			p.Number = key
		}
		if err := NewEngine(tx).CheckCreatePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, &p); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		var err error
		created, err = tx.FindPayment(ctx, p.ID)
		return err
	})
	s.logMutation(ctx, opCreate, KindPayment, err, "id", p.ID, "number", p.Number, "commitment_id", p.CommitmentID, "amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePayment replaces number, date, amount and note, and moves the
// payment to p.CommitmentID when it is set and differs from the current
// parent. A blank number keeps the current one.
func (s *Service) UpdatePayment(ctx context.Context, id PaymentID, p Payment) (*Payment, error) {
	p.Number = strings.TrimSpace(p.Number)
	p.Date = CalendarDate(p.Date)
	if err := p.Amount.Validate(); err != nil {
		return nil, err
	}

	var updated *Payment
	err := s.store.WithTx(ctx, func(tx Store) error {
		if p.Number == "" {
			current, err := tx.FindPayment(ctx, id)
			if err != nil {
				return fmt.Errorf("find payment %d: %w", id, err)
			}
			if current != nil {
				p.Number = current.Number
			}
		}
		current, err := NewEngine(tx).CheckUpdatePayment(ctx, id, p)
		if err != nil {
			return err
		}
		p.ID = id
		if p.CommitmentID == 0 {
			p.CommitmentID = current.CommitmentID
		}
		if err := tx.SavePayment(ctx, &p); err != nil {
			return fmt.Errorf("save payment %d: %w", id, err)
		}
		updated, err = tx.FindPayment(ctx, id)
		return err
	})
	s.logMutation(ctx, opUpdate, KindPayment, err, "id", id, "number", p.Number, "commitment_id", p.CommitmentID, "amount", p.Amount)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePayment removes a payment. Payments have no dependents.
func (s *Service) DeletePayment(ctx context.Context, id PaymentID) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := NewEngine(tx).CheckDeletePayment(ctx, id); err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return fmt.Errorf("delete payment %d: %w", id, err)
		}
		return nil
	})
	s.logMutation(ctx, opDelete, KindPayment, err, "id", id)
	return err
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary totals every tier and counts expenses per status.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	expenses, err := s.ListExpenses(ctx)
	if err != nil {
		return nil, err
	}
	commitments, err := s.ListCommitments(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.ListPayments(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		ExpenseCount:    len(expenses),
		CommitmentCount: len(commitments),
		PaymentCount:    len(payments),
		ByStatus:        make(map[Status]int, len(Statuses)),
	}
	for _, st := range Statuses {
		sum.ByStatus[st] = 0
	}
	for _, e := range expenses {
		sum.TotalExpenses = sum.TotalExpenses.Add(e.Amount)
		sum.ByStatus[e.Status]++
	}
	for _, c := range commitments {
		sum.TotalCommitments = sum.TotalCommitments.Add(c.Amount)
	}
	for _, p := range payments {
		sum.TotalPayments = sum.TotalPayments.Add(p.Amount)
	}
	return sum, nil
}

// =============================================================================
// LOGGING
// =============================================================================

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// logMutation logs accepted mutations at Info, rejections at Warn and
// internal failures at Error.
func (s *Service) logMutation(ctx context.Context, op string, kind Kind, err error, attrs ...any) {
	attrs = append([]any{"operation", op, "kind", kind}, attrs...)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, string(kind)+" "+op+"d", attrs...)
	case IsClientError(err):
		s.logger.WarnContext(ctx, string(kind)+" "+op+" rejected", append(attrs, "error", err)...)
	default:
		s.logger.ErrorContext(ctx, string(kind)+" "+op+" failed", append(attrs, "error", err)...)
	}
}
