package loan

import "context"

// Service is the remote loan API.
type Service interface {
	CreateLoan(ctx context.Context, req CreateRequest) (*Loan, error)
	GetLoanDetail(ctx context.Context, id string) (*Loan, error)
	SubmitLoan(ctx context.Context, id string) (*Loan, error)
}
