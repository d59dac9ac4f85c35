package budget_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/budget/store"
	"github.com/warp/budget-engine/logging"
)

// seqKeys hands out predictable business keys.
type seqKeys struct{ n int }

func (k *seqKeys) next(prefix string) string {
	k.n++
	return fmt.Sprintf("%s-%03d", prefix, k.n)
}

func (k *seqKeys) ProtocolNumber() string   { return k.next("P") }
func (k *seqKeys) CommitmentNumber() string { return k.next("NE") }
func (k *seqKeys) PaymentNumber() string    { return k.next("NP") }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.TxMemory
	svc   *budget.Service
}

func newFixture(t *testing.T) *fixture {
	mem := store.NewTxMemory()
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: mem,
		svc:   budget.NewService(mem, budget.WithKeyGenerator(&seqKeys{}), budget.WithLogger(logging.Discard())),
	}
}

var day = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

func (f *fixture) expense(protocol, amount string) *budget.Expense {
	f.t.Helper()
	e, err := f.svc.CreateExpense(f.ctx, budget.Expense{
		ProtocolNumber: protocol,
		Category:       "Outros",
		ProtocolDate:   day,
		DueDate:        day.AddDate(0, 1, 0),
		Creditor:       "ACME",
		Amount:         budget.MustMoney(amount),
	})
	require.NoError(f.t, err)
	return e
}

func (f *fixture) commitment(expenseID budget.ExpenseID, number, amount string) *budget.Commitment {
	f.t.Helper()
	c, err := f.svc.CreateCommitment(f.ctx, budget.Commitment{
		Number:    number,
		Date:      day,
		Amount:    budget.MustMoney(amount),
		ExpenseID: expenseID,
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) payment(commitmentID budget.CommitmentID, number, amount string) *budget.Payment {
	f.t.Helper()
	p, err := f.svc.CreatePayment(f.ctx, budget.Payment{
		Number:       number,
		Date:         day,
		Amount:       budget.MustMoney(amount),
		CommitmentID: commitmentID,
	})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) status(id budget.ExpenseID) budget.Status {
	f.t.Helper()
	e, err := f.svc.GetExpense(f.ctx, id)
	require.NoError(f.t, err)
	return e.Status
}
