package documentmock

import (
	"context"
	"sync"

	domain "loan-submission-queue/internal/domain/document"
)

// Service is a function-backed mock of domain.Service. Unset funcs succeed
// with a presign derived from the request.
type Service struct {
	PresignFn func(ctx context.Context, req domain.PresignRequest) (*domain.PresignedUpload, error)
	PutFn     func(ctx context.Context, uploadURL, contentType string, body []byte) error

	mu       sync.Mutex
	Presigns []domain.PresignRequest
	Puts     []string
}

var _ domain.Service = (*Service)(nil)

func (m *Service) RequestPresignUpload(ctx context.Context, req domain.PresignRequest) (*domain.PresignedUpload, error) {
	m.mu.Lock()
	m.Presigns = append(m.Presigns, req)
	m.mu.Unlock()
	if m.PresignFn != nil {
		return m.PresignFn(ctx, req)
	}
	return &domain.PresignedUpload{
		DocumentID: "doc-" + req.DocumentType,
		UploadURL:  "https://storage.test/" + req.FileName,
		ObjectKey:  "loans/" + req.LoanID + "/" + req.FileName,
	}, nil
}

func (m *Service) Put(ctx context.Context, uploadURL, contentType string, body []byte) error {
	m.mu.Lock()
	m.Puts = append(m.Puts, uploadURL)
	m.mu.Unlock()
	if m.PutFn != nil {
		return m.PutFn(ctx, uploadURL, contentType, body)
	}
	return nil
}

func (m *Service) PresignCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Presigns)
}
