package loanmock

import (
	"context"
	"errors"
	"sync"

	domain "loan-submission-queue/internal/domain/loan"
)

var errUnimplemented = errors.New("loanmock: method not implemented")

// Service is a function-backed mock that satisfies domain.Service and counts calls.
type Service struct {
	CreateLoanFn    func(ctx context.Context, req domain.CreateRequest) (*domain.Loan, error)
	GetLoanDetailFn func(ctx context.Context, id string) (*domain.Loan, error)
	SubmitLoanFn    func(ctx context.Context, id string) (*domain.Loan, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ domain.Service = (*Service)(nil)

func (m *Service) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

// Calls reports how many times the named method ran.
func (m *Service) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *Service) CreateLoan(ctx context.Context, req domain.CreateRequest) (*domain.Loan, error) {
	m.count("CreateLoan")
	if m.CreateLoanFn != nil {
		return m.CreateLoanFn(ctx, req)
	}
	return nil, errUnimplemented
}

func (m *Service) GetLoanDetail(ctx context.Context, id string) (*domain.Loan, error) {
	m.count("GetLoanDetail")
	if m.GetLoanDetailFn != nil {
		return m.GetLoanDetailFn(ctx, id)
	}
	return nil, errUnimplemented
}

func (m *Service) SubmitLoan(ctx context.Context, id string) (*domain.Loan, error) {
	m.count("SubmitLoan")
	if m.SubmitLoanFn != nil {
		return m.SubmitLoanFn(ctx, id)
	}
	return nil, errUnimplemented
}
