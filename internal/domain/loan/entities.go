package loan

// StatusDraft is the only remote status treated as "not yet submitted".
const StatusDraft = "DRAFT"

// Loan is the backend's view of a loan application.
type Loan struct {
	ID         string `json:"id"`
	LoanStatus string `json:"loan_status"`
	LoanAmount int64  `json:"loan_amount"`
	Tenor      int    `json:"tenor"`
}

// Submitted reports whether the backend already moved the loan past DRAFT.
func (l *Loan) Submitted() bool { return l.LoanStatus != StatusDraft }

type CreateRequest struct {
	CustomerName string  `json:"customer_name"`
	ProductCode  string  `json:"product_code"`
	ProductName  string  `json:"product_name"`
	InterestRate float64 `json:"interest_rate"`
	LoanAmount   int64   `json:"loan_amount"`
	Tenor        int     `json:"tenor"`
	Purpose      string  `json:"purpose"`
	DownPayment  int64   `json:"down_payment"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}
