package budget_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/budget/store"
)

// seed writes rows straight into a memory store, bypassing the engine.
func seed(t *testing.T) (*store.Memory, budget.ExpenseID, budget.CommitmentID, budget.PaymentID) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	e := &budget.Expense{ProtocolNumber: "P-1", Amount: budget.MustMoney("1000.00")}
	require.NoError(t, mem.SaveExpense(ctx, e))
	c := &budget.Commitment{Number: "NE-1", Amount: budget.MustMoney("600.00"), ExpenseID: e.ID}
	require.NoError(t, mem.SaveCommitment(ctx, c))
	p := &budget.Payment{Number: "NP-1", Amount: budget.MustMoney("250.00"), CommitmentID: c.ID}
	require.NoError(t, mem.SavePayment(ctx, p))
	return mem, e.ID, c.ID, p.ID
}

func TestEngine_ChecksDoNotWrite(t *testing.T) {
	mem, eID, cID, _ := seed(t)
	ctx := context.Background()
	engine := budget.NewEngine(mem)

	require.NoError(t, engine.CheckCreateCommitment(ctx, budget.Commitment{Number: "NE-2", Amount: budget.MustMoney("400.00"), ExpenseID: eID}))
	require.NoError(t, engine.CheckCreatePayment(ctx, budget.Payment{Number: "NP-2", Amount: budget.MustMoney("350.00"), CommitmentID: cID}))

	cs, err := mem.ListCommitments(ctx)
	require.NoError(t, err)
	assert.Len(t, cs, 1)
	ps, err := mem.ListPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestEngine_CeilingBoundaries(t *testing.T) {
	mem, eID, cID, pID := seed(t)
	ctx := context.Background()
	engine := budget.NewEngine(mem)

	tests := []struct {
		name  string
		check func(amount budget.Money) error
		limit string // largest accepted amount
	}{
		{"create commitment", func(a budget.Money) error {
			return engine.CheckCreateCommitment(ctx, budget.Commitment{Number: "NE-2", Amount: a, ExpenseID: eID})
		}, "400.00"},
		{"update commitment", func(a budget.Money) error {
			_, err := engine.CheckUpdateCommitment(ctx, cID, budget.Commitment{Number: "NE-1", Amount: a})
			return err
		}, "1000.00"},
		{"create payment", func(a budget.Money) error {
			return engine.CheckCreatePayment(ctx, budget.Payment{Number: "NP-2", Amount: a, CommitmentID: cID})
		}, "350.00"},
		{"update payment", func(a budget.Money) error {
			_, err := engine.CheckUpdatePayment(ctx, pID, budget.Payment{Number: "NP-1", Amount: a})
			return err
		}, "600.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := budget.MustMoney(tt.limit)
			assert.NoError(t, tt.check(limit))
			err := tt.check(limit.Add(budget.MustMoney("0.01")))
			assert.True(t, errors.Is(err, budget.ErrCeilingExceeded), "got %v", err)
		})
	}
}

func TestEngine_NotFound(t *testing.T) {
	mem, eID, _, _ := seed(t)
	ctx := context.Background()
	engine := budget.NewEngine(mem)

	_, err := engine.CheckUpdateExpense(ctx, 999, budget.Expense{})
	assert.True(t, budget.IsNotFound(err))
	_, err = engine.CheckUpdateCommitment(ctx, 999, budget.Commitment{})
	assert.True(t, budget.IsNotFound(err))
	_, err = engine.CheckUpdatePayment(ctx, 999, budget.Payment{})
	assert.True(t, budget.IsNotFound(err))
	assert.True(t, budget.IsNotFound(engine.CheckDeleteExpense(ctx, 999)))
	assert.True(t, budget.IsNotFound(engine.CheckDeleteCommitment(ctx, 999)))
	assert.True(t, budget.IsNotFound(engine.CheckDeletePayment(ctx, 999)))
	assert.True(t, budget.IsNotFound(engine.CheckCreatePayment(ctx, budget.Payment{CommitmentID: 999})))

	var nf *budget.NotFoundError
	require.ErrorAs(t, engine.CheckCreateCommitment(ctx, budget.Commitment{ExpenseID: eID + 100}), &nf)
	assert.Equal(t, budget.KindExpense, nf.Kind)
	assert.Equal(t, int64(eID+100), nf.ID)
}

func TestEngine_UpdateExpenseFloor(t *testing.T) {
	mem, eID, _, _ := seed(t)
	ctx := context.Background()
	engine := budget.NewEngine(mem)

	current, err := engine.CheckUpdateExpense(ctx, eID, budget.Expense{ProtocolNumber: "P-1", Amount: budget.MustMoney("600.00")})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", current.Amount.String())

	_, err = engine.CheckUpdateExpense(ctx, eID, budget.Expense{ProtocolNumber: "P-1", Amount: budget.MustMoney("599.99")})
	assert.True(t, errors.Is(err, budget.ErrFloorViolation))
}

// The excluding query and "full sum minus old amount" agree for every
// child, so one code path is enough.
func TestEngine_SiblingSumFormulasAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.expense("P-1", "1000.00")
	var cs []*budget.Commitment
	for _, amt := range []string{"100.10", "0.01", "250.00", "333.33"} {
		cs = append(cs, f.commitment(e.ID, "", amt))
	}
	var ps []*budget.Payment
	for _, amt := range []string{"10.00", "0.05", "90.05"} {
		ps = append(ps, f.payment(cs[0].ID, "", amt))
	}

	full, err := f.store.SumCommitments(ctx, e.ID)
	require.NoError(t, err)
	for _, c := range cs {
		excluding, err := f.store.SumCommitmentsExcluding(ctx, e.ID, c.ID)
		require.NoError(t, err)
		assert.True(t, full.Sub(c.Amount).Equal(excluding), "commitment %d", c.ID)
	}

	fullP, err := f.store.SumPayments(ctx, cs[0].ID)
	require.NoError(t, err)
	for _, p := range ps {
		excluding, err := f.store.SumPaymentsExcluding(ctx, cs[0].ID, p.ID)
		require.NoError(t, err)
		assert.True(t, fullP.Sub(p.Amount).Equal(excluding), "payment %d", p.ID)
	}
}

func TestCeilingExceededError_Message(t *testing.T) {
	err := &budget.CeilingExceededError{
		Kind:       budget.KindCommitment,
		ParentKind: budget.KindExpense,
		ParentID:   7,
		Ceiling:    budget.MustMoney("500"),
		Allocated:  budget.MustMoney("300"),
		Requested:  budget.MustMoney("250"),
	}

	assert.Equal(t, "550.00", err.Total().String())
	assert.Equal(t, "50.00", err.Excess().String())
	assert.Contains(t, err.Error(), "expense 7")
	assert.True(t, budget.IsClientError(err))
}
