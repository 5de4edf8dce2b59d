package upload

import "time"

type QueueInput struct {
	LoanDraftID    string `json:"loan_draft_id" validate:"required"`
	FilePath       string `json:"file_path" validate:"required"`
	DocumentType   string `json:"document_type" validate:"required"`
	ShouldCompress bool   `json:"should_compress"`
}

// Uploaded is what the backend returns for a stored document.
type Uploaded struct {
	DocumentID string `json:"document_id"`
	ObjectKey  string `json:"object_key"`
}

type Options struct {
	// TempDir holds compressed copies until cleanup.
	TempDir             string
	CompressTargetBytes int64
	PollInterval        time.Duration
}
