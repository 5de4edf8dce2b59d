package remote

import (
	"context"
	"fmt"

	"loan-submission-queue/internal/domain/document"

	"github.com/go-resty/resty/v2"
)

type DocumentClient struct {
	api *resty.Client
	// storage talks to presigned URLs; it carries no backend auth header.
	storage *resty.Client
}

func NewDocumentClient(api *resty.Client) *DocumentClient {
	return &DocumentClient{
		api:     api,
		storage: resty.New().SetTimeout(api.GetClient().Timeout),
	}
}

type presignReq struct {
	FileName     string `json:"file_name"`
	DocumentType string `json:"document_type"`
	ContentType  string `json:"content_type"`
}

func (d *DocumentClient) RequestPresignUpload(ctx context.Context, req document.PresignRequest) (*document.PresignedUpload, error) {
	var out envelope[document.PresignedUpload]
	resp, err := d.api.R().
		SetContext(ctx).
		SetPathParam("id", req.LoanID).
		SetBody(presignReq{FileName: req.FileName, DocumentType: req.DocumentType, ContentType: req.ContentType}).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/api/v1/loans/{id}/documents/presign")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("presign %s: %w", req.DocumentType, err)
	}
	if out.Data.UploadURL == "" {
		return nil, fmt.Errorf("presign %s: empty upload url", req.DocumentType)
	}
	return &out.Data, nil
}

func (d *DocumentClient) Put(ctx context.Context, uploadURL, contentType string, body []byte) error {
	resp, err := d.storage.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Put(uploadURL)
	if err := check(resp, err); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
