package job

import (
	"context"
	"strings"
	"time"
)

// Result is what a handler reports back to the scheduler.
type Result int

const (
	Success Result = iota
	// Retry asks the scheduler to run the job again after a backoff.
	Retry
	// Failure ends the job without further automatic attempts.
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

type Kind string

const (
	KindSubmitLoan      Kind = "submit"
	KindUploadDocuments Kind = "upload"
)

func SubmitTag(loanID string) string { return string(KindSubmitLoan) + "_" + loanID }
func UploadTag(loanDraftID string) string { return string(KindUploadDocuments) + "_" + loanDraftID }

// ParseTag splits a tag into its kind and payload.
func ParseTag(tag string) (Kind, string, bool) {
	k, payload, ok := strings.Cut(tag, "_")
	if !ok || payload == "" {
		return "", "", false
	}
	switch Kind(k) {
	case KindSubmitLoan, KindUploadDocuments:
		return Kind(k), payload, true
	}
	return "", "", false
}

// Scheduler is a keyed work queue: one pending or running job per tag.
type Scheduler interface {
	// Schedule enqueues tag to run after delay. An earlier pending run is kept.
	Schedule(ctx context.Context, tag string, kind Kind, payload string, delay time.Duration) error
	// ScheduleImmediate enqueues tag to run now, overriding any backoff.
	ScheduleImmediate(ctx context.Context, tag string, kind Kind, payload string) error
	CancelAllWorkByTag(ctx context.Context, tag string) error
	// NextRun reports when tag is next due, if it is queued at all.
	NextRun(ctx context.Context, tag string) (time.Time, bool, error)
}

type Handler interface {
	Run(ctx context.Context, payload string) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload string) Result

func (f HandlerFunc) Run(ctx context.Context, payload string) Result { return f(ctx, payload) }
