package submission

import (
	"loan-submission-queue/internal/domain/loan"
	domain "loan-submission-queue/internal/domain/submission"
)

// SubmitInput is the loan draft snapshot captured at enqueue time.
type SubmitInput struct {
	LoanDraftID   string            `json:"loan_draft_id"`
	CustomerName  string            `json:"customer_name" validate:"required"`
	ProductCode   string            `json:"product_code" validate:"required"`
	ProductName   string            `json:"product_name"`
	InterestRate  float64           `json:"interest_rate" validate:"gte=0"`
	LoanAmount    int64             `json:"loan_amount" validate:"gt=0"`
	Tenor         int               `json:"tenor" validate:"gt=0"`
	Purpose       string            `json:"purpose"`
	DownPayment   int64             `json:"down_payment" validate:"gte=0"`
	Latitude      float64           `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64           `json:"longitude" validate:"gte=-180,lte=180"`
	DocumentPaths map[string]string `json:"document_paths"`
}

const (
	ReasonManualRetry      = "Manual retry"
	ReasonNetworkTrigger   = "Network Trigger"
	ReasonCancelled        = "Cancelled by user"
	ReasonWaitingDocuments = "Waiting for document uploads"
)

func createRequest(p *domain.PendingLoanSubmission) loan.CreateRequest {
	return loan.CreateRequest{
		CustomerName: p.CustomerName,
		ProductCode:  p.ProductCode,
		ProductName:  p.ProductName,
		InterestRate: p.InterestRate,
		LoanAmount:   p.LoanAmount,
		Tenor:        p.Tenor,
		Purpose:      p.Purpose,
		DownPayment:  p.DownPayment,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
	}
}
