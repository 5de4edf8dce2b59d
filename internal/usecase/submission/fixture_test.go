package submission

import (
	"context"
	"sync"
	"testing"
	"time"

	"loan-submission-queue/internal/domain/loan"
	domain "loan-submission-queue/internal/domain/submission"
	updomain "loan-submission-queue/internal/domain/upload"
	"loan-submission-queue/internal/testutil/documentmock"
	"loan-submission-queue/internal/testutil/jobmock"
	"loan-submission-queue/internal/testutil/loanmock"
	"loan-submission-queue/internal/testutil/notifymock"
	"loan-submission-queue/internal/testutil/sessionmock"
	"loan-submission-queue/internal/testutil/testdb"
	uploaduc "loan-submission-queue/internal/usecase/upload"

	"go.uber.org/zap"
)

const maxRetries = 3

type fixture struct {
	st      testdb.Stores
	loans   *loanmock.Service
	sched   *jobmock.Scheduler
	sink    *notifymock.Sink
	uploads *uploaduc.Orchestrator
	m       *Manager
	w       *Worker

	mu           sync.Mutex
	remoteStatus string
}

// newFixture wires real sqlite stores and a real upload orchestrator around
// mocked remote services. The remote loan is created as srv_1 in DRAFT and
// SubmitLoan moves it to SUBMITTED.
func newFixture(t *testing.T, user string) *fixture {
	t.Helper()
	f := &fixture{
		st:           testdb.NewStores(t),
		sched:        &jobmock.Scheduler{},
		sink:         &notifymock.Sink{},
		remoteStatus: loan.StatusDraft,
	}
	f.loans = &loanmock.Service{
		CreateLoanFn: func(context.Context, loan.CreateRequest) (*loan.Loan, error) {
			return &loan.Loan{ID: "srv_1", LoanStatus: loan.StatusDraft}, nil
		},
		GetLoanDetailFn: func(_ context.Context, id string) (*loan.Loan, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return &loan.Loan{ID: id, LoanStatus: f.remoteStatus}, nil
		},
		SubmitLoanFn: func(_ context.Context, id string) (*loan.Loan, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.remoteStatus = "SUBMITTED"
			return &loan.Loan{ID: id, LoanStatus: f.remoteStatus}, nil
		},
	}
	sess := sessionmock.Static(user)
	f.uploads = uploaduc.NewOrchestrator(f.st.Uploads, f.st.UoW, &documentmock.Service{}, f.sched, sess,
		uploaduc.Options{TempDir: t.TempDir()}, zap.NewNop())
	f.m = NewManager(f.st.Submissions, f.st.UoW, f.sched, sess, 5*time.Millisecond, zap.NewNop())
	f.w = NewWorker(f.st.Submissions, f.loans, f.uploads, f.sink, maxRetries, zap.NewNop())
	return f
}

func sampleInput() SubmitInput {
	return SubmitInput{
		LoanDraftID:   "DRAFT-1",
		CustomerName:  "Siti Aminah",
		ProductCode:   "KUR-MIKRO",
		ProductName:   "KUR Mikro",
		InterestRate:  6,
		LoanAmount:    5_000_000,
		Tenor:         12,
		Purpose:       "working capital",
		DocumentPaths: map[string]string{"KTP": "/a.jpg"},
	}
}

func (f *fixture) get(t *testing.T, loanID string) *domain.PendingLoanSubmission {
	t.Helper()
	p, err := f.st.Submissions.GetByLoanID(context.Background(), loanID)
	if err != nil {
		t.Fatalf("GetByLoanID(%s): %v", loanID, err)
	}
	return p
}

// completedDoc stores an already uploaded document for the draft.
func (f *fixture) completedDoc(t *testing.T, draftID, docType, path string) {
	t.Helper()
	docID, key := "doc-"+docType, "loans/"+draftID+"/"+docType
	err := f.st.Uploads.Save(context.Background(), &updomain.PendingDocumentUpload{
		ID:            "UP-" + draftID + "-" + docType,
		UserID:        "U-1",
		LoanDraftID:   draftID,
		DocumentType:  docType,
		LocalFilePath: path,
		Status:        updomain.StatusCompleted,
		DocumentID:    &docID,
		ObjectKey:     &key,
	})
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
}

// finishUpload claims an upload row and closes it as completed, or failed with reason.
func (f *fixture) finishUpload(t *testing.T, id, reason string) {
	t.Helper()
	ctx := context.Background()
	row, err := f.st.Uploads.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get upload %s: %v", id, err)
	}
	if ok, err := f.st.Uploads.MarkUploading(ctx, id, time.Now()); err != nil || !ok {
		t.Fatalf("claim upload %s: ok=%v err=%v", id, ok, err)
	}
	var ok bool
	if reason == "" {
		ok, err = f.st.Uploads.MarkCompleted(ctx, id, row.LocalFilePath, "doc-1", "k", time.Now())
	} else {
		ok, err = f.st.Uploads.MarkFailed(ctx, id, row.LocalFilePath, reason, time.Now())
	}
	if err != nil || !ok {
		t.Fatalf("finish upload %s: ok=%v err=%v", id, ok, err)
	}
}

// seed stores a row directly, bypassing the manager.
func (f *fixture) seed(t *testing.T, p *domain.PendingLoanSubmission) {
	t.Helper()
	if p.PendingStatus == "" {
		p.PendingStatus = domain.StatusPending
	}
	if p.UserID == "" {
		p.UserID = "U-1"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := f.st.Submissions.Save(context.Background(), p); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
