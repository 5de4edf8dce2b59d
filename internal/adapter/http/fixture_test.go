package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loan-submission-queue/internal/testutil/documentmock"
	"loan-submission-queue/internal/testutil/jobmock"
	"loan-submission-queue/internal/testutil/sessionmock"
	"loan-submission-queue/internal/testutil/testdb"
	subuc "loan-submission-queue/internal/usecase/submission"
	uploaduc "loan-submission-queue/internal/usecase/upload"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type server struct {
	e       *echo.Echo
	st      testdb.Stores
	sched   *jobmock.Scheduler
	manager *subuc.Manager
	uploads *uploaduc.Orchestrator
}

func newServer(t *testing.T, user string) *server {
	t.Helper()
	s := &server{st: testdb.NewStores(t), sched: &jobmock.Scheduler{}}
	sess := sessionmock.Static(user)
	s.manager = subuc.NewManager(s.st.Submissions, s.st.UoW, s.sched, sess, 5*time.Millisecond, zap.NewNop())
	s.uploads = uploaduc.NewOrchestrator(s.st.Uploads, s.st.UoW, &documentmock.Service{}, s.sched, sess,
		uploaduc.Options{TempDir: t.TempDir(), PollInterval: 5 * time.Millisecond}, zap.NewNop())

	s.e = echo.New()
	s.e.Validator = NewValidator()
	RegisterRoutes(s.e, Routes{
		Health:      NewHandler(),
		Submissions: NewSubmissionHandler(s.manager),
		Uploads:     NewUploadHandler(s.uploads),
	})
	return s
}

func (s *server) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON: %v; raw=%s", err, rec.Body.String())
	}
	return v
}

func submitBody() map[string]any {
	return map[string]any{
		"loan_draft_id": "DRAFT-1",
		"customer_name": "Siti",
		"product_code":  "KUR",
		"interest_rate": 1.5,
		"loan_amount":   5000000,
		"tenor":         12,
		"latitude":      -6.2,
		"longitude":     106.8,
	}
}

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
