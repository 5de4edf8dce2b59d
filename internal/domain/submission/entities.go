package submission

import (
	"errors"
	"time"

	"loan-submission-queue/internal/domain/session"
)

var (
	ErrNotFound        = errors.New("pending submission not found")
	ErrUnauthenticated = session.ErrUnauthenticated
	ErrNotCancellable  = errors.New("submission is not cancellable in its current status")
	ErrNotRetryable    = errors.New("submission cannot be retried in its current status")
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSubmitting Status = "SUBMITTING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// ActiveStatuses are the statuses listed to the user as still in flight.
var ActiveStatuses = []Status{StatusPending, StatusSubmitting, StatusFailed}

// Table: pending_loan_submissions
type PendingLoanSubmission struct {
	LoanID      string `gorm:"column:loan_id;primaryKey;size:36" json:"loan_id"`
	UserID      string `gorm:"column:user_id;size:64;not null;index:idx_pls_user" json:"user_id"`
	LoanDraftID string `gorm:"column:loan_draft_id;size:36;index" json:"loan_draft_id"`

	CustomerName string  `gorm:"column:customer_name" json:"customer_name"`
	ProductCode  string  `gorm:"column:product_code;size:64" json:"product_code"`
	ProductName  string  `gorm:"column:product_name" json:"product_name"`
	InterestRate float64 `gorm:"column:interest_rate" json:"interest_rate"`
	LoanAmount   int64   `gorm:"column:loan_amount" json:"loan_amount"`
	Tenor        int     `gorm:"column:tenor" json:"tenor"`
	Purpose      string  `gorm:"column:purpose" json:"purpose"`
	DownPayment  int64   `gorm:"column:down_payment" json:"down_payment"`
	Latitude     float64 `gorm:"column:latitude" json:"latitude"`
	Longitude    float64 `gorm:"column:longitude" json:"longitude"`

	ServerLoanID *string `gorm:"column:server_loan_id;size:64" json:"server_loan_id,omitempty"`
	// document type -> local file path
	DocumentPaths map[string]string `gorm:"column:document_paths;type:text;serializer:json" json:"document_paths"`

	PendingStatus Status     `gorm:"column:pending_status;size:16;not null;index" json:"pending_status"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastRetryTime *time.Time `gorm:"column:last_retry_time" json:"last_retry_time,omitempty"`
	FailureReason string     `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (PendingLoanSubmission) TableName() string { return "pending_loan_submissions" }

// DraftID falls back to the loan id for submissions enqueued without a draft.
func (p *PendingLoanSubmission) DraftID() string {
	if p.LoanDraftID != "" {
		return p.LoanDraftID
	}
	return p.LoanID
}

// StatusUpdate is a single-row write. Nil fields are left untouched.
type StatusUpdate struct {
	Status     Status
	RetryCount *int
	At         time.Time
	Reason     *string
}
