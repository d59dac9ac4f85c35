/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the budget domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMATS:
  Amounts:        JSON numbers with two fractional digits (1000.00).
                  Quoted decimals ("1000.00") are accepted on input.
  Expense dates:  RFC 3339 timestamps
  Other dates:    YYYY-MM-DD

VALIDATION:
  Requests are parsed into budget types by their toXxx methods, which
  return *budget.InvalidInputError for malformed dates. Everything else is
  validated by the service.

SEE ALSO:
  - handlers.go: Uses these types
  - budget/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/budget-engine/budget"
)

const dateLayout = "2006-01-02"

// =============================================================================
// EXPENSES
// =============================================================================

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID             int64         `json:"id"`
	ProtocolNumber string        `json:"protocol_number"`
	Category       string        `json:"category"`
	ProtocolDate   string        `json:"protocol_date"`
	DueDate        string        `json:"due_date"`
	Creditor       string        `json:"creditor"`
	Description    string        `json:"description"`
	Amount         budget.Money  `json:"amount"`
	Status         budget.Status `json:"status"`
}

// ExpenseRequest is the body of expense create and update.
// A blank protocol_number is generated on create and kept on update.
type ExpenseRequest struct {
	ProtocolNumber string        `json:"protocol_number"`
	Category       string        `json:"category"`
	ProtocolDate   string        `json:"protocol_date"`
	DueDate        string        `json:"due_date"`
	Creditor       string        `json:"creditor"`
	Description    string        `json:"description"`
	Amount         *budget.Money `json:"amount"`
}

func (r ExpenseRequest) toExpense() (budget.Expense, error) {
	protocolDate, err := parseTimestamp("protocol_date", r.ProtocolDate)
	if err != nil {
		return budget.Expense{}, err
	}
	dueDate, err := parseTimestamp("due_date", r.DueDate)
	if err != nil {
		return budget.Expense{}, err
	}
	amount, err := requireAmount(r.Amount)
	if err != nil {
		return budget.Expense{}, err
	}
	return budget.Expense{
		ProtocolNumber: r.ProtocolNumber,
		Category:       r.Category,
		ProtocolDate:   protocolDate,
		DueDate:        dueDate,
		Creditor:       r.Creditor,
		Description:    r.Description,
		Amount:         amount,
	}, nil
}

func toExpenseDTO(e budget.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:             int64(e.ID),
		ProtocolNumber: e.ProtocolNumber,
		Category:       e.Category,
		ProtocolDate:   e.ProtocolDate.UTC().Format(time.RFC3339),
		DueDate:        e.DueDate.UTC().Format(time.RFC3339),
		Creditor:       e.Creditor,
		Description:    e.Description,
		Amount:         e.Amount,
		Status:         e.Status,
	}
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// CommitmentDTO represents a commitment in API responses.
type CommitmentDTO struct {
	ID              int64        `json:"id"`
	Number          string       `json:"commitment_number"`
	Date            string       `json:"commitment_date"`
	Amount          budget.Money `json:"amount"`
	Note            string       `json:"note"`
	ExpenseID       int64        `json:"expense_id"`
	ExpenseProtocol string       `json:"expense_protocol_number"`
}

// CommitmentRequest is the body of commitment create and update.
// expense_id is required on create and ignored on update.
type CommitmentRequest struct {
	Number    string        `json:"commitment_number"`
	Date      string        `json:"commitment_date"`
	Amount    *budget.Money `json:"amount"`
	Note      string        `json:"note"`
	ExpenseID int64         `json:"expense_id"`
}

func (r CommitmentRequest) toCommitment() (budget.Commitment, error) {
	date, err := parseDate("commitment_date", r.Date)
	if err != nil {
		return budget.Commitment{}, err
	}
	amount, err := requireAmount(r.Amount)
	if err != nil {
		return budget.Commitment{}, err
	}
	return budget.Commitment{
		Number:    r.Number,
		Date:      date,
		Amount:    amount,
		Note:      r.Note,
		ExpenseID: budget.ExpenseID(r.ExpenseID),
	}, nil
}

func toCommitmentDTO(c budget.Commitment) CommitmentDTO {
	return CommitmentDTO{
		ID:              int64(c.ID),
		Number:          c.Number,
		Date:            c.Date.Format(dateLayout),
		Amount:          c.Amount,
		Note:            c.Note,
		ExpenseID:       int64(c.ExpenseID),
		ExpenseProtocol: c.ExpenseProtocol,
	}
}

func toCommitmentDTOs(cs []budget.Commitment) []CommitmentDTO {
	dtos := make([]CommitmentDTO, len(cs))
	for i, c := range cs {
		dtos[i] = toCommitmentDTO(c)
	}
	return dtos
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID               int64        `json:"id"`
	Number           string       `json:"payment_number"`
	Date             string       `json:"payment_date"`
	Amount           budget.Money `json:"amount"`
	Note             string       `json:"note"`
	CommitmentID     int64        `json:"commitment_id"`
	CommitmentNumber string       `json:"commitment_number"`
}

// PaymentRequest is the body of payment create and update. On update a
// non-zero commitment_id different from the current one moves the payment.
type PaymentRequest struct {
	Number       string        `json:"payment_number"`
	Date         string        `json:"payment_date"`
	Amount       *budget.Money `json:"amount"`
	Note         string        `json:"note"`
	CommitmentID int64         `json:"commitment_id"`
}

func (r PaymentRequest) toPayment() (budget.Payment, error) {
	date, err := parseDate("payment_date", r.Date)
	if err != nil {
		return budget.Payment{}, err
	}
	amount, err := requireAmount(r.Amount)
	if err != nil {
		return budget.Payment{}, err
	}
	return budget.Payment{
		Number:       r.Number,
		Date:         date,
		Amount:       amount,
		Note:         r.Note,
		CommitmentID: budget.CommitmentID(r.CommitmentID),
	}, nil
}

func toPaymentDTO(p budget.Payment) PaymentDTO {
	return PaymentDTO{
		ID:               int64(p.ID),
		Number:           p.Number,
		Date:             p.Date.Format(dateLayout),
		Amount:           p.Amount,
		Note:             p.Note,
		CommitmentID:     int64(p.CommitmentID),
		CommitmentNumber: p.CommitmentNumber,
	}
}

func toPaymentDTOs(ps []budget.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

// =============================================================================
// SUMMARY / SCENARIOS / ERRORS
// =============================================================================

// SummaryDTO is the dashboard view.
type SummaryDTO struct {
	ExpenseCount     int                   `json:"expense_count"`
	CommitmentCount  int                   `json:"commitment_count"`
	PaymentCount     int                   `json:"payment_count"`
	TotalExpenses    budget.Money          `json:"total_expenses"`
	TotalCommitments budget.Money          `json:"total_commitments"`
	TotalPayments    budget.Money          `json:"total_payments"`
	ByStatus         map[budget.Status]int `json:"by_status"`
}

func toSummaryDTO(s *budget.Summary) SummaryDTO {
	return SummaryDTO{
		ExpenseCount:     s.ExpenseCount,
		CommitmentCount:  s.CommitmentCount,
		PaymentCount:     s.PaymentCount,
		TotalExpenses:    s.TotalExpenses,
		TotalCommitments: s.TotalCommitments,
		TotalPayments:    s.TotalPayments,
		ByStatus:         s.ByStatus,
	}
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// parseTimestamp accepts RFC 3339 or a bare YYYY-MM-DD.
func parseTimestamp(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &budget.InvalidInputError{Field: field, Reason: "required"}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, &budget.InvalidInputError{Field: field, Reason: "use RFC 3339 or YYYY-MM-DD"}
}

// requireAmount rejects a missing or null amount. A JSON null leaves the
// pointer nil without reaching Money.UnmarshalJSON.
func requireAmount(m *budget.Money) (budget.Money, error) {
	if m == nil {
		return budget.Money{}, &budget.InvalidInputError{Field: "amount", Reason: "required"}
	}
	return *m, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &budget.InvalidInputError{Field: field, Reason: "required"}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &budget.InvalidInputError{Field: field, Reason: "use YYYY-MM-DD"}
	}
	return t, nil
}
