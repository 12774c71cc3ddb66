package metadefender

import (
	"context"
	"fmt"
	"time"

	"github.com/Bob-Loth/opswat-demo/internal/log"
)

// Scanner is the remote side of the workflow. *Client implements it.
type Scanner interface {
	LookupHash(ctx context.Context, fp Fingerprint) (*LookupResult, error)
	Submit(ctx context.Context, data []byte, filename string) (*Submission, error)
	FetchAnalysis(ctx context.Context, dataID string) (*AnalysisReport, error)
}

var _ Scanner = (*Client)(nil)

// OutcomeKind is how a Resolve call ended.
type OutcomeKind int

const (
	// OutcomeFailed means a fatal error stopped the workflow.
	OutcomeFailed OutcomeKind = iota
	// OutcomeCacheHit means the service already knew the file; nothing was uploaded.
	OutcomeCacheHit
	// OutcomeCompleted means the file was uploaded and its analysis finished.
	OutcomeCompleted
	// OutcomeTimedOut means polling ran out of attempts or time.
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCacheHit:
		return "cache_hit"
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Outcome is the result of one Resolve call. Report is set only for
// OutcomeCacheHit and OutcomeCompleted; Err only for the other two.
type Outcome struct {
	Kind        OutcomeKind
	Fingerprint Fingerprint
	DataID      string
	Report      *AnalysisReport
	Err         error
}

func (o *Outcome) fail(err error) (*Outcome, error) {
	o.Kind = OutcomeFailed
	if IsPollTimeoutError(err) {
		o.Kind = OutcomeTimedOut
	}
	o.Report = nil
	o.Err = err
	return o, err
}

// Workflow decides, for one file, between reusing a known analysis and
// uploading the file, then waits for the analysis to finish.
type Workflow struct {
	scanner  Scanner
	pollCfg  PollConfig
	progress ProgressFunc
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithPollConfig sets the polling bounds. Zero fields keep their defaults.
func WithPollConfig(p PollConfig) WorkflowOption {
	return func(w *Workflow) {
		w.pollCfg = p.withDefaults()
	}
}

// WithProgressFunc registers a callback for in-progress reports.
func WithProgressFunc(fn ProgressFunc) WorkflowOption {
	return func(w *Workflow) {
		w.progress = fn
	}
}

// NewWorkflow returns a Workflow driving scanner.
func NewWorkflow(scanner Scanner, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		scanner: scanner,
		pollCfg: DefaultPollConfig(),
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Resolve produces the analysis report for a file whose fingerprint is fp.
// data and filename are only used if the file has to be uploaded.
//
// The returned Outcome is never nil. On failure its Kind is OutcomeFailed or
// OutcomeTimedOut and the same error is also returned.
func (w *Workflow) Resolve(ctx context.Context, fp Fingerprint, data []byte, filename string) (*Outcome, error) {
	out := &Outcome{Fingerprint: fp}
	if fp == "" {
		return out.fail(NewValidationError("fingerprint is required", nil))
	}

	hit, err := w.scanner.LookupHash(ctx, fp)
	if err != nil {
		return out.fail(fmt.Errorf("lookup %s: %w", fp, err))
	}

	if hit != nil {
		out.DataID = hit.DataID
		if hit.Report != nil && hit.Report.IsComplete(w.pollCfg.CompletionThreshold) {
			log.Infof("%s: cached analysis %s found", fp, hit.DataID)
			out.Kind = OutcomeCacheHit
			out.Report = hit.Report
			return out, nil
		}

		// A hit can point at an analysis that has not finished yet.
		log.Infof("%s: cached analysis %s not finished, polling", fp, hit.DataID)
		report, err := w.poll(ctx, hit.DataID)
		if err != nil {
			return out.fail(fmt.Errorf("poll %s: %w", hit.DataID, err))
		}
		out.Kind = OutcomeCacheHit
		out.Report = report
		return out, nil
	}

	sub, err := w.scanner.Submit(ctx, data, filename)
	if err != nil {
		return out.fail(fmt.Errorf("submit %s: %w", filename, err))
	}
	out.DataID = sub.DataID
	log.Infof("%s: uploaded as %s (%s, %d in queue)", fp, sub.DataID, sub.Status, sub.InQueue)

	report, err := w.poll(ctx, sub.DataID)
	if err != nil {
		return out.fail(fmt.Errorf("poll %s: %w", sub.DataID, err))
	}
	out.Kind = OutcomeCompleted
	out.Report = report
	return out, nil
}
