package remote

import (
	"context"
	"errors"
	"fmt"

	"loan-submission-queue/internal/domain/loan"
	"loan-submission-queue/internal/domain/remoteerr"

	"github.com/go-resty/resty/v2"
)

type LoanClient struct{ c *resty.Client }

func NewLoanClient(c *resty.Client) *LoanClient { return &LoanClient{c: c} }

func (l *LoanClient) CreateLoan(ctx context.Context, req loan.CreateRequest) (*loan.Loan, error) {
	var out envelope[loan.Loan]
	resp, err := l.c.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/api/v1/loans")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("create loan: %w", remoteerr.FromStatus(502, "response without loan id"))
	}
	return &out.Data, nil
}

func (l *LoanClient) GetLoanDetail(ctx context.Context, id string) (*loan.Loan, error) {
	var out envelope[loan.Loan]
	resp, err := l.c.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/api/v1/loans/{id}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("get loan %s: %w", id, err)
	}
	return &out.Data, nil
}

// SubmitLoan treats 409 as "already submitted" and re-reads the loan.
func (l *LoanClient) SubmitLoan(ctx context.Context, id string) (*loan.Loan, error) {
	var out envelope[loan.Loan]
	resp, err := l.c.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/api/v1/loans/{id}/submit")
	err = check(resp, err)
	if errors.Is(err, remoteerr.ErrConflict) {
		return l.GetLoanDetail(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("submit loan %s: %w", id, err)
	}
	return &out.Data, nil
}
