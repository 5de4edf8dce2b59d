package gormrepo

import (
	"context"

	"loan-submission-queue/internal/domain/submission"
	"loan-submission-queue/internal/domain/upload"
	"loan-submission-queue/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(uow.Repos{
			Submissions: &SubmissionRepository{db: tx},
			Uploads:     &UploadRepository{db: tx},
		})
	})
}

// Migrate creates or updates both queue tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&submission.PendingLoanSubmission{}, &upload.PendingDocumentUpload{})
}
