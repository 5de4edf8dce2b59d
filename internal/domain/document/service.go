package document

import "context"

// PresignedUpload is a time-limited direct-to-storage upload target.
type PresignedUpload struct {
	DocumentID string `json:"document_id"`
	UploadURL  string `json:"upload_url"`
	ObjectKey  string `json:"object_key"`
}

type PresignRequest struct {
	LoanID       string
	FileName     string
	DocumentType string
	ContentType  string
}

// Service is the remote document API.
type Service interface {
	RequestPresignUpload(ctx context.Context, req PresignRequest) (*PresignedUpload, error)
	// Put sends the raw file bytes to a presigned URL.
	Put(ctx context.Context, uploadURL, contentType string, body []byte) error
}
