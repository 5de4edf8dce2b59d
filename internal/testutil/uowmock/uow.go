package uowmock

import (
	"context"
	"errors"

	"loan-submission-queue/internal/domain/uow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Passthrough, when set, runs fn directly against those repos without a transaction.
type UoW struct {
	WithinTxFn  func(ctx context.Context, fn func(r uow.Repos) error) error
	Passthrough *uow.Repos
}

func New() *UoW { return &UoW{} }

func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	if m.Passthrough != nil {
		return fn(*m.Passthrough)
	}
	return errUnimplemented
}
