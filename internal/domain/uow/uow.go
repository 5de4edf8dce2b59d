package uow

import (
	"context"

	"loan-submission-queue/internal/domain/submission"
	"loan-submission-queue/internal/domain/upload"
)

type Repos struct {
	Submissions submission.Repository
	Uploads     upload.Repository
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}
