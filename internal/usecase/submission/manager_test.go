package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"loan-submission-queue/internal/domain/job"
	domain "loan-submission-queue/internal/domain/submission"
	"loan-submission-queue/internal/domain/uow"
	"loan-submission-queue/internal/testutil/sessionmock"
	"loan-submission-queue/internal/testutil/uowmock"
	uploaduc "loan-submission-queue/internal/usecase/upload"

	"go.uber.org/zap"
)

func TestSubmitLoanOffline_RequiresUser(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.m.SubmitLoanOffline(context.Background(), sampleInput())
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	rows, _ := f.st.Submissions.ListByStatus(context.Background(), domain.StatusPending)
	if len(rows) != 0 || len(f.sched.Calls()) != 0 {
		t.Fatalf("nothing may be created: rows=%d calls=%d", len(rows), len(f.sched.Calls()))
	}
}

func TestSubmitLoanOffline_PersistsAndSchedules(t *testing.T) {
	f := newFixture(t, "U-1")
	loanID, err := f.m.SubmitLoanOffline(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("SubmitLoanOffline: %v", err)
	}
	p := f.get(t, loanID)
	if p.PendingStatus != domain.StatusPending || p.RetryCount != 0 || p.ServerLoanID != nil {
		t.Fatalf("unexpected row: %+v", p)
	}
	if p.UserID != "U-1" || p.LoanAmount != 5_000_000 || p.Tenor != 12 || p.DocumentPaths["KTP"] != "/a.jpg" {
		t.Fatalf("snapshot not stored: %+v", p)
	}
	calls := f.sched.Calls()
	if len(calls) != 1 || calls[0].Tag != job.SubmitTag(loanID) || calls[0].Kind != job.KindSubmitLoan || !calls[0].Immediate {
		t.Fatalf("unexpected schedule calls: %+v", calls)
	}
}

func TestSubmitLoanOffline_SchedulerDownStillQueues(t *testing.T) {
	f := newFixture(t, "U-1")
	f.sched.Err = errors.New("redis down")
	loanID, err := f.m.SubmitLoanOffline(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("row is durable, want nil error, got %v", err)
	}
	if p := f.get(t, loanID); p.PendingStatus != domain.StatusPending {
		t.Fatalf("status = %s", p.PendingStatus)
	}
}

func TestGetPendingSubmissions_ScopedSortedActive(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-old", PendingStatus: domain.StatusFailed, CreatedAt: base})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-new", PendingStatus: domain.StatusPending, CreatedAt: base.Add(time.Minute)})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-done", PendingStatus: domain.StatusSuccess, CreatedAt: base.Add(2 * time.Minute)})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-other", UserID: "U-2", CreatedAt: base.Add(3 * time.Minute)})

	rows, err := f.m.GetPendingSubmissions(ctx)
	if err != nil {
		t.Fatalf("GetPendingSubmissions: %v", err)
	}
	if len(rows) != 2 || rows[0].LoanID != "L-new" || rows[1].LoanID != "L-old" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	anon := newFixture(t, "")
	rows, err = anon.m.GetPendingSubmissions(ctx)
	if err != nil || rows == nil || len(rows) != 0 {
		t.Fatalf("logged out: rows=%v err=%v", rows, err)
	}
}

func TestWatchPendingSubmissions_EmitsOnChange(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.m.WatchPendingSubmissions(ctx)

	if rows := <-ch; len(rows) != 0 {
		t.Fatalf("first emission should be empty")
	}
	loanID, _ := f.m.SubmitLoanOffline(context.Background(), sampleInput())
	select {
	case rows := <-ch:
		if len(rows) != 1 || rows[0].LoanID != loanID {
			t.Fatalf("unexpected rows: %+v", rows)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no emission after submit")
	}
}

func TestRetrySubmission_ResetsAndReschedules(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-1", PendingStatus: domain.StatusFailed, RetryCount: 3, FailureReason: "boom"})

	if err := f.m.RetrySubmission(ctx, "L-1"); err != nil {
		t.Fatalf("RetrySubmission: %v", err)
	}
	p := f.get(t, "L-1")
	if p.PendingStatus != domain.StatusPending || p.RetryCount != 0 || p.FailureReason != ReasonManualRetry {
		t.Fatalf("unexpected row: %+v", p)
	}
	if f.sched.Count("schedule", job.SubmitTag("L-1")) != 1 {
		t.Fatalf("not rescheduled: %+v", f.sched.Calls())
	}
	if err := f.m.RetrySubmission(ctx, "missing"); err != nil {
		t.Fatalf("missing row must be a no-op, got %v", err)
	}
}

func TestRetrySubmission_TerminalRowsStay(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-1"})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-done", PendingStatus: domain.StatusSuccess})
	if err := f.m.CancelSubmission(ctx, "L-1"); err != nil {
		t.Fatalf("CancelSubmission: %v", err)
	}

	for _, id := range []string{"L-1", "L-done"} {
		if err := f.m.RetrySubmission(ctx, id); !errors.Is(err, domain.ErrNotRetryable) {
			t.Fatalf("%s: want ErrNotRetryable, got %v", id, err)
		}
		if f.sched.Count("schedule", job.SubmitTag(id)) != 0 {
			t.Fatalf("%s rescheduled: %+v", id, f.sched.Calls())
		}
	}
	if p := f.get(t, "L-1"); p.PendingStatus != domain.StatusCancelled {
		t.Fatalf("cancelled row revived: %+v", p)
	}
	if p := f.get(t, "L-done"); p.PendingStatus != domain.StatusSuccess {
		t.Fatalf("finished row revived: %+v", p)
	}

	// a stray job for the cancelled row must not create the loan either
	if res := f.w.Run(ctx, "L-1"); res != job.Success {
		t.Fatalf("res = %s", res)
	}
	if f.loans.Calls("CreateLoan") != 0 || len(f.sink.Sent()) != 0 {
		t.Fatalf("cancelled loan reached the backend: create=%d sent=%d", f.loans.Calls("CreateLoan"), len(f.sink.Sent()))
	}
}

func TestCancelSubmission_OnlyPendingOrFailed(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-pending", PendingStatus: domain.StatusPending})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-failed", PendingStatus: domain.StatusFailed})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-busy", PendingStatus: domain.StatusSubmitting})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-done", PendingStatus: domain.StatusSuccess})

	for _, id := range []string{"L-pending", "L-failed"} {
		if err := f.m.CancelSubmission(ctx, id); err != nil {
			t.Fatalf("cancel %s: %v", id, err)
		}
		if p := f.get(t, id); p.PendingStatus != domain.StatusCancelled {
			t.Fatalf("%s status = %s", id, p.PendingStatus)
		}
		if f.sched.Count("cancel", job.SubmitTag(id)) != 1 {
			t.Fatalf("%s job not cancelled", id)
		}
	}
	for _, id := range []string{"L-busy", "L-done"} {
		if err := f.m.CancelSubmission(ctx, id); !errors.Is(err, domain.ErrNotCancellable) {
			t.Fatalf("cancel %s: want ErrNotCancellable, got %v", id, err)
		}
		if f.sched.Count("cancel", job.SubmitTag(id)) != 0 {
			t.Fatalf("%s job must not be cancelled", id)
		}
	}
	if p := f.get(t, "L-busy"); p.PendingStatus != domain.StatusSubmitting {
		t.Fatalf("in-flight row changed: %s", p.PendingStatus)
	}
	if err := f.m.CancelSubmission(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
}

func TestTriggerPendingSubmissions_ResetsFailedAndSchedulesAll(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-pending", PendingStatus: domain.StatusPending})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-failed", PendingStatus: domain.StatusFailed, RetryCount: 3, FailureReason: "timeout"})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-done", PendingStatus: domain.StatusSuccess})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-cancelled", PendingStatus: domain.StatusCancelled})

	n, err := f.m.TriggerPendingSubmissions(ctx)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	p := f.get(t, "L-failed")
	if p.PendingStatus != domain.StatusPending || p.FailureReason != ReasonNetworkTrigger {
		t.Fatalf("failed row not reset: %+v", p)
	}
	if pending := f.get(t, "L-pending"); pending.FailureReason != "" {
		t.Fatalf("pending row reason changed: %q", pending.FailureReason)
	}
	for _, id := range []string{"L-pending", "L-failed"} {
		if f.sched.Count("schedule", job.SubmitTag(id)) != 1 {
			t.Fatalf("%s not scheduled", id)
		}
	}
	for _, c := range f.sched.Calls() {
		if !c.Immediate {
			t.Fatalf("trigger must schedule immediately: %+v", c)
		}
	}
	if f.sched.Count("schedule", job.SubmitTag("L-done")) != 0 || f.sched.Count("schedule", job.SubmitTag("L-cancelled")) != 0 {
		t.Fatalf("terminal rows must not be scheduled")
	}
}

func TestRetryStale(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	recent := time.Now().UTC()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-never"})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-recent", LastRetryTime: &recent})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-failed", PendingStatus: domain.StatusFailed})

	n, err := f.m.RetryStale(ctx, 10*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if f.sched.Count("schedule", job.SubmitTag("L-never")) != 1 {
		t.Fatalf("stale row not scheduled: %+v", f.sched.Calls())
	}
}

func TestRetryStale_KeepsQueuedBackoff(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-waiting"})
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-lost"})
	due := time.Now().Add(time.Hour)
	f.sched.NextRunFn = func(tag string) (time.Time, bool) {
		return due, tag == job.SubmitTag("L-waiting")
	}

	n, err := f.m.RetryStale(ctx, 10*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if f.sched.Count("schedule", job.SubmitTag("L-waiting")) != 0 {
		t.Fatalf("queued row pulled forward: %+v", f.sched.Calls())
	}
	if f.sched.Count("schedule", job.SubmitTag("L-lost")) != 1 {
		t.Fatalf("lost row not scheduled: %+v", f.sched.Calls())
	}
}

func TestClearUser_RemovesBothTables(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	loanID, _ := f.m.SubmitLoanOffline(ctx, sampleInput())
	f.seed(t, &domain.PendingLoanSubmission{LoanID: "L-other", UserID: "U-2"})
	if _, err := f.uploads.Enqueue(ctx, "U-1", uploaduc.QueueInput{LoanDraftID: "DRAFT-1", FilePath: "/a.jpg", DocumentType: "KTP"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := f.m.ClearUser(ctx, "U-1"); err != nil {
		t.Fatalf("ClearUser: %v", err)
	}
	if _, err := f.st.Submissions.GetByLoanID(ctx, loanID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("submission should be gone, got %v", err)
	}
	if rows, _ := f.st.Uploads.ListByDraft(ctx, "DRAFT-1"); len(rows) != 0 {
		t.Fatalf("uploads should be gone, got %d", len(rows))
	}
	if _, err := f.st.Submissions.GetByLoanID(ctx, "L-other"); err != nil {
		t.Fatalf("other user's row must stay: %v", err)
	}
	if f.sched.Count("cancel", job.SubmitTag(loanID)) != 1 || f.sched.Count("cancel", job.UploadTag("DRAFT-1")) != 1 {
		t.Fatalf("jobs not cancelled: %+v", f.sched.Calls())
	}
}

func TestClearUser_TxFailureKeepsJobs(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	loanID, _ := f.m.SubmitLoanOffline(ctx, sampleInput())

	boom := errors.New("disk full")
	tx := uowmock.New().WithWithinTx(func(ctx context.Context, fn func(uow.Repos) error) error {
		return boom
	})
	m := NewManager(f.st.Submissions, tx, f.sched, sessionmock.Static("U-1"), time.Millisecond, zap.NewNop())

	if err := m.ClearUser(ctx, "U-1"); !errors.Is(err, boom) {
		t.Fatalf("want tx error, got %v", err)
	}
	if _, err := f.st.Submissions.GetByLoanID(ctx, loanID); err != nil {
		t.Fatalf("row must survive a failed clear: %v", err)
	}
	if f.sched.Count("cancel", job.SubmitTag(loanID)) != 0 {
		t.Fatalf("job cancelled despite failed clear: %+v", f.sched.Calls())
	}
}
