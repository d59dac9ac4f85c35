package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/budget/store"
	"github.com/warp/budget-engine/logging"
)

func TestScenario_Lifecycle(t *testing.T) {
	// GIVEN: Lifecycle scenario
	// WHEN: Loading the scenario
	// THEN: One expense per status exists
	s := setupTestServer(t)

	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "lifecycle"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sum := decode[SummaryDTO](t, s.do(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, 5, sum.ExpenseCount)
	for _, st := range budget.Statuses {
		assert.Equal(t, 1, sum.ByStatus[st], "status %s", st)
	}

	current := decode[ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "lifecycle", current.ID)
}

func TestScenario_LoadReplacesData(t *testing.T) {
	s := setupTestServer(t)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "road-works"}).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "building-works"}).Code)

	sum := decode[SummaryDTO](t, s.do(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, 1, sum.ExpenseCount)
	assert.Equal(t, 1, sum.ByStatus[budget.StatusPaid])
	assert.Equal(t, "980000.00", sum.TotalPayments.String())
}

func TestScenario_Unknown(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_Reset(t *testing.T) {
	s := setupTestServer(t)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "road-works"}).Code)

	rec := s.do(http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, decode[[]ExpenseDTO](t, s.do(http.MethodGet, "/api/expenses", nil)))
	assert.Equal(t, "null\n", s.do(http.MethodGet, "/api/scenarios/current", nil).Body.String())

	// ids restart after a reset
	created := s.createExpense("P-1", "1")
	assert.Equal(t, int64(1), created.ID)
}

func TestScenario_AllLoadOnMemoryStore(t *testing.T) {
	for id, load := range scenarioLoaders {
		t.Run(id, func(t *testing.T) {
			svc := budget.NewService(store.NewTxMemory(), budget.WithLogger(logging.Discard()))
			require.NoError(t, load(context.Background(), svc))

			list, err := svc.ListExpenses(context.Background())
			require.NoError(t, err)
			assert.NotEmpty(t, list)
		})
	}
}
