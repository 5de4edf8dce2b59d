package http

import (
	"net/http"

	uc "loan-submission-queue/internal/usecase/upload"

	"github.com/labstack/echo/v4"
)

type UploadHandler struct{ o *uc.Orchestrator }

func NewUploadHandler(o *uc.Orchestrator) *UploadHandler { return &UploadHandler{o: o} }

type queueDocumentReq struct {
	FilePath       string `json:"file_path" validate:"required"`
	DocumentType   string `json:"document_type" validate:"required,doctype"`
	ShouldCompress bool   `json:"should_compress"`
}

func (h *UploadHandler) Queue(c echo.Context) error {
	var req queueDocumentReq
	if bad := bindAndValidate(c, &req); bad != nil {
		return c.JSON(http.StatusBadRequest, bad)
	}
	id, err := h.o.QueueDocumentUpload(c.Request().Context(), uc.QueueInput{
		LoanDraftID:    c.Param("draft_id"),
		FilePath:       req.FilePath,
		DocumentType:   req.DocumentType,
		ShouldCompress: req.ShouldCompress,
	})
	if err != nil && id == "" {
		return writeError(c, err)
	}
	// the row is stored even when scheduling failed; the stale sweep runs it
	return c.JSON(http.StatusCreated, map[string]string{"upload_id": id})
}

func (h *UploadHandler) List(c echo.Context) error {
	rows, err := h.o.GetPendingUploads(c.Request().Context(), c.Param("draft_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *UploadHandler) Stream(c echo.Context) error {
	return streamSSE(c, h.o.WatchPendingUploads(c.Request().Context(), c.Param("draft_id")))
}

func (h *UploadHandler) Status(c echo.Context) error {
	done, err := h.o.AreAllDocumentsUploaded(c.Request().Context(), c.Param("draft_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"all_uploaded": done})
}

func (h *UploadHandler) Cancel(c echo.Context) error {
	if err := h.o.CancelUpload(c.Request().Context(), c.Param("upload_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
