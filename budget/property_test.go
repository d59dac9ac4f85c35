package budget_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
)

// TestProperty_RandomMutationsKeepSumsBounded applies random mutations
// through the service and checks, after each one, that no commitment sum
// exceeds its expense and no payment sum exceeds its commitment. Rejected
// mutations must leave the state untouched.
func TestProperty_RandomMutationsKeepSumsBounded(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))
		f := newFixture(t)
		ctx := context.Background()

		for step := 0; step < 200; step++ {
			before := snapshotSums(t, f)
			err := randomMutation(ctx, f, rng)
			if err != nil {
				require.True(t, budget.IsClientError(err), "seed %d step %d: %v", seed, step, err)
				assert.Equal(t, before, snapshotSums(t, f), "rejected mutation changed state (seed %d step %d)", seed, step)
			}
			assertInvariants(t, f)
		}
	}
}

func randomAmount(rng *rand.Rand) budget.Money {
	return budget.MoneyFromCents(rng.Int64N(50000))
}

func randomMutation(ctx context.Context, f *fixture, rng *rand.Rand) error {
	expenses, _ := f.svc.ListExpenses(ctx)
	commitments, _ := f.svc.ListCommitments(ctx)
	payments, _ := f.svc.ListPayments(ctx)

	pickE := func() budget.ExpenseID {
		if len(expenses) == 0 || rng.IntN(10) == 0 {
			return budget.ExpenseID(rng.Int64N(1000) + 1000)
		}
		return expenses[rng.IntN(len(expenses))].ID
	}
	pickC := func() budget.CommitmentID {
		if len(commitments) == 0 || rng.IntN(10) == 0 {
			return budget.CommitmentID(rng.Int64N(1000) + 1000)
		}
		return commitments[rng.IntN(len(commitments))].ID
	}
	pickP := func() budget.PaymentID {
		if len(payments) == 0 || rng.IntN(10) == 0 {
			return budget.PaymentID(rng.Int64N(1000) + 1000)
		}
		return payments[rng.IntN(len(payments))].ID
	}

	var err error
	switch rng.IntN(9) {
	case 0:
		_, err = f.svc.CreateExpense(ctx, budget.Expense{Amount: randomAmount(rng)})
	case 1:
		_, err = f.svc.UpdateExpense(ctx, pickE(), budget.Expense{Amount: randomAmount(rng)})
	case 2:
		err = f.svc.DeleteExpense(ctx, pickE())
	case 3:
		_, err = f.svc.CreateCommitment(ctx, budget.Commitment{ExpenseID: pickE(), Amount: randomAmount(rng)})
	case 4:
		_, err = f.svc.UpdateCommitment(ctx, pickC(), budget.Commitment{Amount: randomAmount(rng)})
	case 5:
		err = f.svc.DeleteCommitment(ctx, pickC())
	case 6:
		_, err = f.svc.CreatePayment(ctx, budget.Payment{CommitmentID: pickC(), Amount: randomAmount(rng)})
	case 7:
		var target budget.CommitmentID
		if rng.IntN(2) == 0 {
			target = pickC()
		}
		_, err = f.svc.UpdatePayment(ctx, pickP(), budget.Payment{CommitmentID: target, Amount: randomAmount(rng)})
	case 8:
		err = f.svc.DeletePayment(ctx, pickP())
	}
	return err
}

type sums struct {
	expenses    map[budget.ExpenseID]string
	commitments map[budget.CommitmentID]string
	payments    map[budget.PaymentID]string
}

func snapshotSums(t *testing.T, f *fixture) sums {
	t.Helper()
	ctx := context.Background()
	s := sums{
		expenses:    map[budget.ExpenseID]string{},
		commitments: map[budget.CommitmentID]string{},
		payments:    map[budget.PaymentID]string{},
	}
	es, err := f.store.ListExpenses(ctx)
	require.NoError(t, err)
	for _, e := range es {
		s.expenses[e.ID] = e.Amount.String()
	}
	cs, err := f.store.ListCommitments(ctx)
	require.NoError(t, err)
	for _, c := range cs {
		s.commitments[c.ID] = c.Amount.String()
	}
	ps, err := f.store.ListPayments(ctx)
	require.NoError(t, err)
	for _, p := range ps {
		s.payments[p.ID] = p.Amount.String()
	}
	return s
}

func assertInvariants(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	es, err := f.store.ListExpenses(ctx)
	require.NoError(t, err)
	for _, e := range es {
		committed, err := f.store.SumCommitments(ctx, e.ID)
		require.NoError(t, err)
		require.False(t, committed.GreaterThan(e.Amount), "expense %d: committed %s > amount %s", e.ID, committed, e.Amount)
	}

	cs, err := f.store.ListCommitments(ctx)
	require.NoError(t, err)
	for _, c := range cs {
		paid, err := f.store.SumPayments(ctx, c.ID)
		require.NoError(t, err)
		require.False(t, paid.GreaterThan(c.Amount), "commitment %d: paid %s > amount %s", c.ID, paid, c.Amount)
	}
}
