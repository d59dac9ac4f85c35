/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built data sets that populate the store with realistic
	expenses, commitments and payments. Every record goes through
	budget.Service, so scenarios obey the same ceilings as API clients.

AVAILABLE SCENARIOS:

	lifecycle:       One expense in each execution status
	road-works:      A road contract committed in tranches and partly paid
	building-works:  Building works fully committed and fully paid

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create expenses
 3. Create commitments against them
 4. Create payments against the commitments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "lifecycle"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/budget-engine/budget"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "lifecycle",
		Name:        "Execution Lifecycle",
		Description: "Five expenses, one per status from awaiting commitment to paid",
	},
	{
		ID:          "road-works",
		Name:        "Road Works",
		Description: "Highway resurfacing committed in three tranches, first tranche paid",
	},
	{
		ID:          "building-works",
		Name:        "Building Works",
		Description: "School extension fully committed and fully paid",
	},
}

var scenarioLoaders = map[string]func(context.Context, *budget.Service) error{
	"lifecycle":      loadLifecycleScenario,
	"road-works":     loadRoadWorksScenario,
	"building-works": loadBuildingWorksScenario,
}

var errNoResetter = errors.New("store does not support reset")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeServiceError(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Service); err != nil {
		h.writeServiceError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if h.Store == nil {
		return errNoResetter
	}
	return h.Store.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadLifecycleScenario creates one expense per status.
func loadLifecycleScenario(ctx context.Context, svc *budget.Service) error {
	year := time.Now().Year()
	b := &scenarioBuilder{ctx: ctx, svc: svc, year: year}

	b.expense("Outros", "Papelaria Central", "Office supplies", "1500.00")

	e := b.expense("Outros", "Frota Sul", "Vehicle maintenance", "8000.00")
	b.commitment(e, "3000.00", "first half")

	e = b.expense("Obra de Edificação", "Construtora Norte", "Roof repair", "12000.00")
	b.commitment(e, "12000.00", "")

	e = b.expense("Obra de Rodovias", "Asfalto & Cia", "Pothole patching", "20000.00")
	c := b.commitment(e, "20000.00", "")
	b.payment(c, "5000.00", "first measurement")

	e = b.expense("Outros", "Tech Serviços", "Network cabling", "4500.50")
	c = b.commitment(e, "4500.50", "")
	b.payment(c, "2000.25", "")
	b.payment(c, "2500.25", "final")

	return b.err
}

// loadRoadWorksScenario commits a large expense in tranches.
func loadRoadWorksScenario(ctx context.Context, svc *budget.Service) error {
	b := &scenarioBuilder{ctx: ctx, svc: svc, year: time.Now().Year()}

	e := b.expense("Obra de Rodovias", "Pavimentadora Litoral", "CE-040 resurfacing, km 12 to 30", "2500000.00")
	first := b.commitment(e, "1000000.00", "tranche 1")
	b.commitment(e, "750000.00", "tranche 2")
	b.commitment(e, "500000.00", "tranche 3")
	b.payment(first, "400000.00", "measurement 1")
	b.payment(first, "350000.00", "measurement 2")
	b.payment(first, "250000.00", "measurement 3")

	return b.err
}

// loadBuildingWorksScenario produces a fully paid expense.
func loadBuildingWorksScenario(ctx context.Context, svc *budget.Service) error {
	b := &scenarioBuilder{ctx: ctx, svc: svc, year: time.Now().Year()}

	e := b.expense("Obra de Edificação", "Construtora Horizonte", "School extension, 6 classrooms", "980000.00")
	c1 := b.commitment(e, "600000.00", "structure")
	c2 := b.commitment(e, "380000.00", "finishing")
	b.payment(c1, "600000.00", "")
	b.payment(c2, "190000.00", "")
	b.payment(c2, "190000.00", "")

	return b.err
}

// scenarioBuilder chains service calls and keeps the first error. Calls
// after a failure are no-ops.
type scenarioBuilder struct {
	ctx  context.Context
	svc  *budget.Service
	year int
	err  error
}

func (b *scenarioBuilder) expense(category, creditor, description, amount string) budget.ExpenseID {
	if b.err != nil {
		return 0
	}
	protocolDate := time.Date(b.year, time.January, 15, 9, 0, 0, 0, time.UTC)
	exp, err := b.svc.CreateExpense(b.ctx, budget.Expense{
		Category:     category,
		ProtocolDate: protocolDate,
		DueDate:      protocolDate.AddDate(0, 6, 0),
		Creditor:     creditor,
		Description:  description,
		Amount:       budget.MustMoney(amount),
	})
	if err != nil {
		b.err = fmt.Errorf("expense %q: %w", description, err)
		return 0
	}
	return exp.ID
}

func (b *scenarioBuilder) commitment(expenseID budget.ExpenseID, amount, note string) budget.CommitmentID {
	if b.err != nil {
		return 0
	}
	c, err := b.svc.CreateCommitment(b.ctx, budget.Commitment{
		Date:      time.Date(b.year, time.February, 1, 0, 0, 0, 0, time.UTC),
		Amount:    budget.MustMoney(amount),
		Note:      note,
		ExpenseID: expenseID,
	})
	if err != nil {
		b.err = fmt.Errorf("commitment of expense %d: %w", expenseID, err)
		return 0
	}
	return c.ID
}

func (b *scenarioBuilder) payment(commitmentID budget.CommitmentID, amount, note string) {
	if b.err != nil {
		return
	}
	_, err := b.svc.CreatePayment(b.ctx, budget.Payment{
		Date:         time.Date(b.year, time.March, 10, 0, 0, 0, 0, time.UTC),
		Amount:       budget.MustMoney(amount),
		Note:         note,
		CommitmentID: commitmentID,
	})
	if err != nil {
		b.err = fmt.Errorf("payment of commitment %d: %w", commitmentID, err)
	}
}
