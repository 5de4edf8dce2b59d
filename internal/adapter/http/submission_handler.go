package http

import (
	"net/http"

	uc "loan-submission-queue/internal/usecase/submission"

	"github.com/labstack/echo/v4"
)

type SubmissionHandler struct{ m *uc.Manager }

func NewSubmissionHandler(m *uc.Manager) *SubmissionHandler { return &SubmissionHandler{m: m} }

func (h *SubmissionHandler) Submit(c echo.Context) error {
	var req uc.SubmitInput
	if bad := bindAndValidate(c, &req); bad != nil {
		return c.JSON(http.StatusBadRequest, bad)
	}
	loanID, err := h.m.SubmitLoanOffline(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"loan_id": loanID})
}

func (h *SubmissionHandler) List(c echo.Context) error {
	rows, err := h.m.GetPendingSubmissions(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *SubmissionHandler) Stream(c echo.Context) error {
	return streamSSE(c, h.m.WatchPendingSubmissions(c.Request().Context()))
}

func (h *SubmissionHandler) Retry(c echo.Context) error {
	if err := h.m.RetrySubmission(c.Request().Context(), c.Param("loan_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *SubmissionHandler) Cancel(c echo.Context) error {
	if err := h.m.CancelSubmission(c.Request().Context(), c.Param("loan_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Sweep is the manual form of the reconnect trigger.
func (h *SubmissionHandler) Sweep(c echo.Context) error {
	n, err := h.m.TriggerPendingSubmissions(c.Request().Context())
	if err != nil && n == 0 {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"scheduled": n})
}

func (h *SubmissionHandler) ClearUser(c echo.Context) error {
	if err := h.m.ClearUser(c.Request().Context(), c.Param("user_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
