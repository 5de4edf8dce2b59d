package upload

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loan-submission-queue/internal/domain/document"
	"loan-submission-queue/internal/domain/job"
	"loan-submission-queue/internal/domain/remoteerr"
	"loan-submission-queue/internal/domain/session"
	domain "loan-submission-queue/internal/domain/upload"
	"loan-submission-queue/internal/testutil/documentmock"
	"loan-submission-queue/internal/testutil/jobmock"
	"loan-submission-queue/internal/testutil/sessionmock"
	"loan-submission-queue/internal/testutil/testdb"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type fixture struct {
	st    testdb.Stores
	docs  *documentmock.Service
	sched *jobmock.Scheduler
	o     *Orchestrator
	dir   string
}

func newFixture(t *testing.T, user string) *fixture {
	t.Helper()
	f := &fixture{
		st:    testdb.NewStores(t),
		docs:  &documentmock.Service{},
		sched: &jobmock.Scheduler{},
		dir:   t.TempDir(),
	}
	f.o = NewOrchestrator(f.st.Uploads, f.st.UoW, f.docs, f.sched, sessionmock.Static(user),
		Options{TempDir: f.dir, CompressTargetBytes: 1 << 20}, zap.NewNop())
	return f
}

// complete and fail drive a row through a claimed upload run.
func (f *fixture) complete(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	row, err := f.st.Uploads.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	_, _ = f.st.Uploads.MarkUploading(ctx, id, time.Now())
	if ok, err := f.st.Uploads.MarkCompleted(ctx, id, row.LocalFilePath, "doc-"+id, "key-"+id, time.Now()); err != nil || !ok {
		t.Fatalf("complete %s: ok=%v err=%v", id, ok, err)
	}
}

func (f *fixture) fail(t *testing.T, id, reason string) {
	t.Helper()
	ctx := context.Background()
	row, err := f.st.Uploads.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	_, _ = f.st.Uploads.MarkUploading(ctx, id, time.Now())
	if ok, err := f.st.Uploads.MarkFailed(ctx, id, row.LocalFilePath, reason, time.Now()); err != nil || !ok {
		t.Fatalf("fail %s: ok=%v err=%v", id, ok, err)
	}
}

// file writes size zero bytes under the fixture dir.
func (f *fixture) file(t *testing.T, name string, size int) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// noisyPNG writes an image that compresses poorly as PNG.
func (f *fixture) noisyPNG(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.Intn(256))
		if i%4 == 3 {
			img.Pix[i] = 0xff
		}
	}
	p := filepath.Join(f.dir, name)
	if err := imaging.Save(img, p); err != nil {
		t.Fatalf("save png: %v", err)
	}
	return p
}

func TestQueueDocumentUpload_RequiresUser(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.o.QueueDocumentUpload(context.Background(), QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	if !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	if rows, _ := f.o.GetPendingUploads(context.Background(), "D-1"); len(rows) != 0 {
		t.Fatalf("no row expected, got %d", len(rows))
	}
}

func TestQueueDocumentUpload_PersistsAndSchedules(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()

	uploadID, err := f.o.QueueDocumentUpload(ctx, QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP", ShouldCompress: true})
	if err != nil {
		t.Fatalf("QueueDocumentUpload: %v", err)
	}
	row, err := f.st.Uploads.GetByID(ctx, uploadID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != domain.StatusPending || row.UserID != "U-1" || row.ContentType != "image/jpeg" || row.FileName != "a.jpg" {
		t.Fatalf("unexpected row: %+v", row)
	}
	calls := f.sched.Calls()
	if len(calls) != 1 || calls[0].Tag != job.UploadTag("D-1") || !calls[0].Immediate || calls[0].Payload != "D-1" {
		t.Fatalf("unexpected schedule calls: %+v", calls)
	}
}

func TestQueueDocumentUpload_ReplacesSameType(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()

	first, _ := f.o.QueueDocumentUpload(ctx, QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	again, _ := f.o.QueueDocumentUpload(ctx, QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	replaced, err := f.o.QueueDocumentUpload(ctx, QueueInput{LoanDraftID: "D-1", FilePath: "/b.png", DocumentType: "KTP"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if first != again || first != replaced {
		t.Fatalf("ids differ: %s %s %s", first, again, replaced)
	}
	rows, _ := f.o.GetPendingUploads(ctx, "D-1")
	if len(rows) != 1 || rows[0].LocalFilePath != "/b.png" || rows[0].ContentType != "image/png" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestQueueDocumentUpload_MissingFields(t *testing.T) {
	f := newFixture(t, "U-1")
	_, err := f.o.QueueDocumentUpload(context.Background(), QueueInput{LoanDraftID: "D-1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestAreAllDocumentsUploaded(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()

	if ok, _ := f.o.AreAllDocumentsUploaded(ctx, "D-1"); !ok {
		t.Fatalf("draft without documents counts as uploaded")
	}
	ktp, _ := f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	selfie, _ := f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/s.jpg", DocumentType: "SELFIE"})
	if ok, _ := f.o.AreAllDocumentsUploaded(ctx, "D-1"); ok {
		t.Fatalf("pending rows must block")
	}
	f.complete(t, ktp)
	_, _ = f.st.Uploads.TransitionStatus(ctx, selfie, []domain.Status{domain.StatusPending}, domain.StatusCancelled, time.Now())
	if ok, err := f.o.AreAllDocumentsUploaded(ctx, "D-1"); err != nil || !ok {
		t.Fatalf("completed plus cancelled should pass: ok=%v err=%v", ok, err)
	}
}

func TestEnsureQueued_OnlyMissingTypes(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	ktp, _ := f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	f.fail(t, ktp, "File size exceeds 10MB limit")

	err := f.o.EnsureQueued(ctx, "U-1", "D-1", map[string]string{"KTP": "/a.jpg", "NPWP": "/n.pdf"})
	if err != nil {
		t.Fatalf("EnsureQueued: %v", err)
	}
	rows, _ := f.o.GetPendingUploads(ctx, "D-1")
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	got, _ := f.st.Uploads.GetByID(ctx, ktp)
	if got.Status != domain.StatusFailed {
		t.Fatalf("existing failed row must be left alone, got %s", got.Status)
	}
	if len(f.sched.Calls()) != 0 {
		t.Fatalf("EnsureQueued must not schedule")
	}
}

func TestUploadDocument_RejectsOversizeBeforeNetwork(t *testing.T) {
	f := newFixture(t, "U-1")
	p := f.file(t, "big.jpg", 15<<20)

	_, err := f.o.UploadDocument(context.Background(), "srv_1", p, "KTP")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if err.Error() != "File size exceeds 10MB limit" {
		t.Fatalf("reason = %q", err.Error())
	}
	if f.docs.PresignCount() != 0 {
		t.Fatalf("no presign expected")
	}
}

func TestUploadDocument_RejectsTypeAndMissingFile(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	if _, err := f.o.UploadDocument(ctx, "srv_1", f.file(t, "a.gif", 10), "KTP"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("gif: want ErrValidation, got %v", err)
	}
	if _, err := f.o.UploadDocument(ctx, "srv_1", filepath.Join(f.dir, "nope.pdf"), "KTP"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing: want ErrValidation, got %v", err)
	}
}

func TestUploadDocument_SendsOriginalWhenSmall(t *testing.T) {
	f := newFixture(t, "U-1")
	p := f.file(t, "npwp.PDF", 2048)

	var gotBody int
	var gotType string
	f.docs.PutFn = func(_ context.Context, _ string, ct string, body []byte) error {
		gotBody, gotType = len(body), ct
		return nil
	}
	out, err := f.o.UploadDocument(context.Background(), "srv_1", p, "NPWP")
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if out.DocumentID != "doc-NPWP" || out.ObjectKey != "loans/srv_1/npwp.PDF" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if gotBody != 2048 || gotType != "application/pdf" {
		t.Fatalf("put body=%d type=%s", gotBody, gotType)
	}
	if f.docs.Presigns[0].LoanID != "srv_1" || f.docs.Presigns[0].DocumentType != "NPWP" {
		t.Fatalf("unexpected presign: %+v", f.docs.Presigns[0])
	}
}

func TestUploadDocument_CompressesLargeImage(t *testing.T) {
	f := newFixture(t, "U-1")
	f.o.opts.CompressTargetBytes = 20_000
	p := f.noisyPNG(t, "selfie.png", 300, 300)
	info, _ := os.Stat(p)

	var sent int
	f.docs.PutFn = func(_ context.Context, _ string, ct string, body []byte) error {
		if ct != "image/jpeg" {
			t.Errorf("content type = %s", ct)
		}
		sent = len(body)
		return nil
	}
	if _, err := f.o.UploadDocument(context.Background(), "srv_1", p, "SELFIE"); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if int64(sent) >= info.Size() {
		t.Fatalf("sent %d bytes, original %d", sent, info.Size())
	}
	if name := f.docs.Presigns[0].FileName; name != "selfie.jpg" {
		t.Fatalf("file name = %s", name)
	}
}

func TestCompressImage_StopsAtFloor(t *testing.T) {
	f := newFixture(t, "U-1")
	p := f.noisyPNG(t, "n.png", 64, 64)
	_, q, err := compressImage(p, 1)
	if err != nil {
		t.Fatalf("compressImage: %v", err)
	}
	if q != qualityFloor {
		t.Fatalf("quality = %d, want %d", q, qualityFloor)
	}
	_, q, _ = compressImage(p, 1<<30)
	if q != qualityStart {
		t.Fatalf("quality = %d, want %d", q, qualityStart)
	}
}

func TestCancelUpload(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	pending, _ := f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	done, _ := f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/s.jpg", DocumentType: "SELFIE"})
	f.complete(t, done)

	if err := f.o.CancelUpload(ctx, pending); err != nil {
		t.Fatalf("CancelUpload: %v", err)
	}
	if _, err := f.st.Uploads.GetByID(ctx, pending); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cancelled row should be deleted, got %v", err)
	}
	if err := f.o.CancelUpload(ctx, done); !errors.Is(err, domain.ErrNotCancelable) {
		t.Fatalf("completed: want ErrNotCancelable, got %v", err)
	}
	if err := f.o.CancelUpload(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
}

func TestCleanupCompleted_TwoPasses(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	copyPath := f.file(t, "compressed_x.jpg", 10)
	old := time.Now().UTC().Add(-48 * time.Hour)
	loanID := "srv_1"
	_ = f.st.Uploads.Save(ctx, &domain.PendingDocumentUpload{
		ID: "UP-1", UserID: "U-1", LoanDraftID: "D-1", LoanID: &loanID, DocumentType: "KTP",
		LocalFilePath: "/a.jpg", Status: domain.StatusCompleted,
		CompressedFilePath: copyPath, IsCompressed: true,
		CreatedAt: old, UpdatedAt: old,
	})

	n, err := f.o.CleanupCompleted(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("first pass n=%d err=%v", n, err)
	}
	if _, err := os.Stat(copyPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("compressed copy should be removed, stat err=%v", err)
	}
	row, _ := f.st.Uploads.GetByID(ctx, "UP-1")
	if !row.CleanupScheduled {
		t.Fatalf("row should be flagged")
	}

	f.o.now = func() time.Time { return time.Now().UTC().Add(72 * time.Hour) }
	if n, err := f.o.CleanupCompleted(ctx, 24*time.Hour); err != nil || n != 1 {
		t.Fatalf("second pass n=%d err=%v", n, err)
	}
	if _, err := f.st.Uploads.GetByID(ctx, "UP-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("row should be deleted, got %v", err)
	}
}

func TestRetryStale_SchedulesDraftsWithLoan(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	_, _ = f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	_, _ = f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/s.jpg", DocumentType: "SELFIE"})
	_, _ = f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-2", FilePath: "/b.jpg", DocumentType: "KTP"})
	_ = f.o.AttachLoan(ctx, "D-1", "srv_1")

	n, err := f.o.RetryStale(ctx, time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("RetryStale n=%d err=%v", n, err)
	}
	if f.sched.Count("schedule", job.UploadTag("D-1")) != 1 || f.sched.Count("schedule", job.UploadTag("D-2")) != 0 {
		t.Fatalf("unexpected schedules: %+v", f.sched.Calls())
	}
}

func TestRetryStale_SkipsQueuedDrafts(t *testing.T) {
	f := newFixture(t, "U-1")
	ctx := context.Background()
	_, _ = f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	_, _ = f.o.Enqueue(ctx, "U-1", QueueInput{LoanDraftID: "D-2", FilePath: "/b.jpg", DocumentType: "KTP"})
	_ = f.o.AttachLoan(ctx, "D-1", "srv_1")
	_ = f.o.AttachLoan(ctx, "D-2", "srv_2")
	f.sched.Reset()
	f.sched.NextRunFn = func(tag string) (time.Time, bool) {
		return time.Now().Add(time.Minute), tag == job.UploadTag("D-1")
	}

	n, err := f.o.RetryStale(ctx, time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("RetryStale n=%d err=%v", n, err)
	}
	if f.sched.Count("schedule", job.UploadTag("D-1")) != 0 || f.sched.Count("schedule", job.UploadTag("D-2")) != 1 {
		t.Fatalf("unexpected schedules: %+v", f.sched.Calls())
	}
	for _, c := range f.sched.Calls() {
		if c.Immediate {
			t.Fatalf("stale sweep must not override backoff: %+v", c)
		}
	}
}

func TestWatchPendingUploads_EmitsChanges(t *testing.T) {
	f := newFixture(t, "U-1")
	f.o.opts.PollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.o.WatchPendingUploads(ctx, "D-1")
	if rows := <-ch; len(rows) != 0 {
		t.Fatalf("first emission should be empty, got %d", len(rows))
	}
	_, _ = f.o.Enqueue(context.Background(), "U-1", QueueInput{LoanDraftID: "D-1", FilePath: "/a.jpg", DocumentType: "KTP"})
	select {
	case rows := <-ch:
		if len(rows) != 1 {
			t.Fatalf("want 1 row, got %d", len(rows))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no emission after enqueue")
	}
}

func TestUploadDocument_RemoteErrorsPassThrough(t *testing.T) {
	f := newFixture(t, "U-1")
	f.docs.PresignFn = func(context.Context, document.PresignRequest) (*document.PresignedUpload, error) {
		return nil, remoteerr.FromStatus(503, "maintenance")
	}
	_, err := f.o.UploadDocument(context.Background(), "srv_1", f.file(t, "a.jpg", 100), "KTP")
	if !errors.Is(err, remoteerr.ErrTransient) || !strings.Contains(err.Error(), "503") {
		t.Fatalf("want transient 503, got %v", err)
	}
}
