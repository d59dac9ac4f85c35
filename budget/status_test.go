package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveStatus(t *testing.T) {
	amount := MustMoney("1000")

	tests := []struct {
		name      string
		committed string
		paid      string
		want      Status
	}{
		{"nothing committed", "0", "0", StatusAwaitingCommitment},
		{"partly committed", "600", "0", StatusPartiallyCommitted},
		{"partly committed with payments", "600", "600", StatusPartiallyCommitted},
		{"one cent short", "999.99", "0", StatusPartiallyCommitted},
		{"fully committed", "1000", "0", StatusAwaitingPayment},
		{"partly paid", "1000", "400", StatusPartiallyPaid},
		{"paid", "1000", "1000", StatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveStatus(MustMoney(tt.committed), MustMoney(tt.paid), amount)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveStatus_PaidComparesWithExpenseAmount(t *testing.T) {
	// GIVEN: An expense shrunk after payments; C == amount, P == amount
	// THEN: paid, the payment sum is compared with the expense amount
	assert.Equal(t, StatusPaid, ResolveStatus(MustMoney("500"), MustMoney("500"), MustMoney("500")))

	// GIVEN: Fully committed, fully paid commitments but expense grown
	// THEN: partially committed again
	assert.Equal(t, StatusPartiallyCommitted, ResolveStatus(MustMoney("500"), MustMoney("500"), MustMoney("800")))
}

func TestResolveStatus_Monotonic(t *testing.T) {
	// Raising C or P with a fixed amount never lowers the rank.
	amount := MustMoney("100")
	steps := []string{"0", "0.01", "50", "99.99", "100"}

	for _, c := range steps {
		for _, p := range steps {
			if MustMoney(p).GreaterThan(MustMoney(c)) {
				continue
			}
			base := ResolveStatus(MustMoney(c), MustMoney(p), amount).Rank()
			for _, c2 := range steps {
				for _, p2 := range steps {
					if MustMoney(c2).LessThan(MustMoney(c)) || MustMoney(p2).LessThan(MustMoney(p)) || MustMoney(p2).GreaterThan(MustMoney(c2)) {
						continue
					}
					got := ResolveStatus(MustMoney(c2), MustMoney(p2), amount).Rank()
					assert.GreaterOrEqual(t, got, base, "C %s->%s P %s->%s", c, c2, p, p2)
				}
			}
		}
	}
}

func TestStatus_Rank(t *testing.T) {
	for i, st := range Statuses {
		assert.Equal(t, i, st.Rank())
	}
	assert.Equal(t, -1, Status("bogus").Rank())
}
