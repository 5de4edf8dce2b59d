package upload

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("pending upload not found")
	ErrValidation    = errors.New("document validation failed")
	ErrNotCancelable = errors.New("upload is not cancellable in its current status")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusUploading Status = "UPLOADING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Claimable rows are picked up by an upload run. Runs for one draft never
// overlap, so an UPLOADING row seen at claim time belongs to an interrupted run.
var Claimable = []Status{StatusPending, StatusFailed, StatusUploading}

// ValidationError is a local file check failure. Its text is the user-facing reason.
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return e.Reason }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Table: pending_document_uploads
type PendingDocumentUpload struct {
	ID            string  `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID        string  `gorm:"column:user_id;size:64;not null;index:idx_pdu_user" json:"user_id"`
	LoanDraftID   string  `gorm:"column:loan_draft_id;size:36;not null;index:idx_pdu_draft_type" json:"loan_draft_id"`
	LoanID        *string `gorm:"column:loan_id;size:64" json:"loan_id,omitempty"`
	DocumentType  string  `gorm:"column:document_type;size:32;not null;index:idx_pdu_draft_type" json:"document_type"`
	LocalFilePath string  `gorm:"column:local_file_path;type:text;not null" json:"local_file_path"`
	FileName      string  `gorm:"column:file_name" json:"file_name"`
	ContentType   string  `gorm:"column:content_type;size:64" json:"content_type"`

	DocumentID *string `gorm:"column:document_id;size:64" json:"document_id,omitempty"`
	ObjectKey  *string `gorm:"column:object_key;type:text" json:"object_key,omitempty"`

	Status        Status     `gorm:"column:status;size:16;not null;index" json:"status"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastRetryTime *time.Time `gorm:"column:last_retry_time" json:"last_retry_time,omitempty"`
	FailureReason string     `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`

	ShouldCompress     bool   `gorm:"column:should_compress;not null;default:true" json:"should_compress"`
	CompressedFilePath string `gorm:"column:compressed_file_path;type:text" json:"compressed_file_path,omitempty"`
	OriginalSize       int64  `gorm:"column:original_size" json:"original_size"`
	CompressedSize     int64  `gorm:"column:compressed_size" json:"compressed_size"`
	IsCompressed       bool   `gorm:"column:is_compressed;not null;default:false" json:"is_compressed"`
	CleanupScheduled   bool   `gorm:"column:cleanup_scheduled;not null;default:false" json:"cleanup_scheduled"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PendingDocumentUpload) TableName() string { return "pending_document_uploads" }

// Compression records what the upload path did to the local file.
type Compression struct {
	CompressedFilePath string
	OriginalSize       int64
	CompressedSize     int64
	IsCompressed       bool
}
