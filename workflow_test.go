package metadefender

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Bob-Loth/opswat-demo/internal/testutil"
)

type fetchStep struct {
	progress int
	err      error
}

// fakeScanner scripts the three remote operations and records how they were called.
type fakeScanner struct {
	lookup    *LookupResult
	lookupErr error
	submitErr error
	dataID    string
	steps     []fetchStep

	lookups    []Fingerprint
	submits    int
	fetchIDs   []string
	fetched    []*AnalysisReport
	submitData []byte
}

func (f *fakeScanner) LookupHash(_ context.Context, fp Fingerprint) (*LookupResult, error) {
	f.lookups = append(f.lookups, fp)
	return f.lookup, f.lookupErr
}

func (f *fakeScanner) Submit(_ context.Context, data []byte, _ string) (*Submission, error) {
	f.submits++
	f.submitData = data
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &Submission{DataID: f.dataID, Status: "inqueue"}, nil
}

func (f *fakeScanner) FetchAnalysis(_ context.Context, dataID string) (*AnalysisReport, error) {
	f.fetchIDs = append(f.fetchIDs, dataID)
	i := len(f.fetchIDs) - 1
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	step := f.steps[i]
	if step.err != nil {
		return nil, step.err
	}
	r := report(dataID, step.progress)
	f.fetched = append(f.fetched, r)
	return r, nil
}

func report(dataID string, progress int) *AnalysisReport {
	return &AnalysisReport{
		DataID: dataID,
		ScanResults: ScanResults{
			ScanDetails: map[string]EngineResult{
				"ClamAV": {ThreatFound: "", ScanResultI: 0, DefTime: "2026-10-16T00:00:00.000Z"},
			},
			ProgressPercentage: progress,
			ScanAllResultA:     "No Threat Detected",
		},
	}
}

// recorder replaces the workflow's sleep and progress hooks.
type recorder struct {
	sleeps   []time.Duration
	progress []int
}

func newTestWorkflow(s Scanner, rec *recorder, opts ...WorkflowOption) *Workflow {
	opts = append(opts, WithProgressFunc(func(_ string, _ int, r *AnalysisReport) {
		rec.progress = append(rec.progress, r.Progress())
	}))
	w := NewWorkflow(s, opts...)
	w.sleep = func(ctx context.Context, d time.Duration) error {
		rec.sleeps = append(rec.sleeps, d)
		return ctx.Err()
	}
	return w
}

func TestResolveCacheHit(t *testing.T) {
	cached := report("cached-1", 100)
	fs := &fakeScanner{lookup: &LookupResult{DataID: "cached-1", Report: cached}}
	rec := &recorder{}

	out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, []byte("data"), "a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeCacheHit {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeCacheHit)
	}
	if out.Report != cached {
		t.Error("Report should be the cached report")
	}
	if fs.submits != 0 {
		t.Errorf("Submit called %d times, want 0", fs.submits)
	}
	if len(fs.fetchIDs) != 0 {
		t.Errorf("FetchAnalysis called %d times, want 0", len(fs.fetchIDs))
	}
	if diff := cmp.Diff([]Fingerprint{testFP}, fs.lookups); diff != "" {
		t.Errorf("lookups mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveCacheHitStillRunning(t *testing.T) {
	t.Run("data_id only", func(t *testing.T) {
		fs := &fakeScanner{
			lookup: &LookupResult{DataID: "cached-1"},
			steps:  []fetchStep{{progress: 60}, {progress: 100}},
		}
		rec := &recorder{}

		out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Kind != OutcomeCacheHit {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeCacheHit)
		}
		if fs.submits != 0 {
			t.Errorf("Submit called %d times, want 0", fs.submits)
		}
		if diff := cmp.Diff([]string{"cached-1", "cached-1"}, fs.fetchIDs); diff != "" {
			t.Errorf("fetch ids mismatch (-want +got):\n%s", diff)
		}
		if out.Report.Progress() != 100 {
			t.Errorf("Progress = %d, want 100", out.Report.Progress())
		}
	})

	t.Run("partial report", func(t *testing.T) {
		fs := &fakeScanner{
			lookup: &LookupResult{DataID: "cached-2", Report: report("cached-2", 20)},
			steps:  []fetchStep{{progress: 99}},
		}
		rec := &recorder{}

		out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Kind != OutcomeCacheHit {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeCacheHit)
		}
		if len(fs.fetchIDs) != 1 {
			t.Errorf("FetchAnalysis called %d times, want 1", len(fs.fetchIDs))
		}
	})
}

func TestResolveSubmitsAndPolls(t *testing.T) {
	fs := &fakeScanner{
		dataID: "job-1",
		steps:  []fetchStep{{progress: 10}, {progress: 45}, {progress: 99}},
	}
	rec := &recorder{}
	wf := newTestWorkflow(fs, rec, WithPollConfig(PollConfig{Interval: 5 * time.Second}))

	out, err := wf.Resolve(context.Background(), testFP, []byte("payload"), "a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeCompleted {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeCompleted)
	}
	if fs.submits != 1 {
		t.Errorf("Submit called %d times, want 1", fs.submits)
	}
	if string(fs.submitData) != "payload" {
		t.Errorf("submitted %q, want %q", fs.submitData, "payload")
	}
	if diff := cmp.Diff([]string{"job-1", "job-1", "job-1"}, fs.fetchIDs); diff != "" {
		t.Errorf("fetch ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second, 5 * time.Second}, rec.sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{10, 45}, rec.progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if out.Report != fs.fetched[2] {
		t.Error("Report should be the exact third fetch result")
	}
	if out.DataID != "job-1" {
		t.Errorf("DataID = %q, want %q", out.DataID, "job-1")
	}
}

func TestResolveJobNotFoundAborts(t *testing.T) {
	fs := &fakeScanner{
		dataID: "job-1",
		steps:  []fetchStep{{progress: 30}, {err: NewJobNotFoundError("job-1")}},
	}
	rec := &recorder{}

	out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, []byte("x"), "x")
	if !IsJobNotFound(err) {
		t.Fatalf("expected job not found, got %v", err)
	}
	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFailed)
	}
	if out.Err != err {
		t.Error("Outcome.Err should be the returned error")
	}
	if out.Report != nil {
		t.Error("Report should be nil on failure")
	}
	if len(fs.fetchIDs) != 2 {
		t.Errorf("FetchAnalysis called %d times, want 2", len(fs.fetchIDs))
	}
	if diff := cmp.Diff([]int{30}, rec.progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSubmitFailure(t *testing.T) {
	fs := &fakeScanner{submitErr: NewProtocolViolationError("file upload: unexpected status 500", 500, nil)}
	rec := &recorder{}

	out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, []byte("x"), "x")
	if !IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFailed)
	}
	if len(fs.fetchIDs) != 0 {
		t.Errorf("FetchAnalysis called %d times, want 0", len(fs.fetchIDs))
	}
}

func TestResolveLookupFailure(t *testing.T) {
	fs := &fakeScanner{lookupErr: NewTransportError("connection failed", errors.New("refused"))}
	rec := &recorder{}

	out, err := newTestWorkflow(fs, rec).Resolve(context.Background(), testFP, []byte("x"), "x")
	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFailed)
	}
	if fs.submits != 0 {
		t.Errorf("Submit called %d times, want 0", fs.submits)
	}
}

func TestResolveEmptyFingerprint(t *testing.T) {
	fs := &fakeScanner{}
	out, err := newTestWorkflow(fs, &recorder{}).Resolve(context.Background(), "", nil, "")
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if out.Kind != OutcomeFailed {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFailed)
	}
	if len(fs.lookups) != 0 {
		t.Error("LookupHash should not be called")
	}
}

func TestResolvePollBounds(t *testing.T) {
	t.Run("max attempts", func(t *testing.T) {
		fs := &fakeScanner{dataID: "job-1", steps: []fetchStep{{progress: 50}}}
		rec := &recorder{}
		wf := newTestWorkflow(fs, rec, WithPollConfig(PollConfig{Interval: time.Second, MaxAttempts: 3}))

		out, err := wf.Resolve(context.Background(), testFP, []byte("x"), "x")
		if !IsPollTimeoutError(err) {
			t.Fatalf("expected poll timeout, got %v", err)
		}
		if out.Kind != OutcomeTimedOut {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeTimedOut)
		}
		if len(fs.fetchIDs) != 3 {
			t.Errorf("FetchAnalysis called %d times, want 3", len(fs.fetchIDs))
		}
		if len(rec.sleeps) != 2 {
			t.Errorf("slept %d times, want 2", len(rec.sleeps))
		}
	})

	t.Run("max duration", func(t *testing.T) {
		fs := &fakeScanner{dataID: "job-1", steps: []fetchStep{{progress: 50}}}
		rec := &recorder{}
		wf := newTestWorkflow(fs, rec, WithPollConfig(PollConfig{
			Interval:    10 * time.Second,
			MaxAttempts: 100,
			MaxDuration: 25 * time.Second,
		}))
		clock := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
		wf.now = func() time.Time { return clock }
		wf.sleep = func(_ context.Context, d time.Duration) error {
			rec.sleeps = append(rec.sleeps, d)
			clock = clock.Add(d)
			return nil
		}

		out, err := wf.Resolve(context.Background(), testFP, []byte("x"), "x")
		if !IsPollTimeoutError(err) {
			t.Fatalf("expected poll timeout, got %v", err)
		}
		if out.Kind != OutcomeTimedOut {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeTimedOut)
		}
		// Waits at 0s and 10s fit in 25s; a third would end at 30s.
		if len(rec.sleeps) != 2 {
			t.Errorf("slept %d times, want 2", len(rec.sleeps))
		}
		if len(fs.fetchIDs) != 3 {
			t.Errorf("FetchAnalysis called %d times, want 3", len(fs.fetchIDs))
		}
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		fs := &fakeScanner{dataID: "job-1", steps: []fetchStep{{progress: 50}}}
		wf := NewWorkflow(fs, WithPollConfig(PollConfig{Interval: time.Hour}))
		ctx, cancel := context.WithCancel(context.Background())
		wf.progress = func(string, int, *AnalysisReport) { cancel() }

		out, err := wf.Resolve(ctx, testFP, []byte("x"), "x")
		if !IsTimeoutError(err) {
			t.Fatalf("expected timeout error, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error should wrap context.Canceled: %v", err)
		}
		if out.Kind != OutcomeFailed {
			t.Errorf("Kind = %v, want %v", out.Kind, OutcomeFailed)
		}
	})
}

func TestResolveAgainstMockServer(t *testing.T) {
	fetches := testutil.NewSequence(
		testutil.MockResponse{StatusCode: http.StatusOK, Body: testutil.ReportResponse("job-9", 10)},
		testutil.MockResponse{StatusCode: http.StatusOK, Body: testutil.ReportResponse("job-9", 99)},
	)
	uploads := 0
	srv := testutil.NewMockServer(map[string]http.HandlerFunc{
		"GET /hash/{hash}": testutil.JSONHandler(http.StatusNotFound, testutil.ErrorResponse(404003, "The hash was not found")),
		"POST /file": testutil.UploadHandler(func(u testutil.Upload) (int, interface{}) {
			uploads++
			return http.StatusOK, testutil.SubmitResponse("job-9")
		}),
		"GET /file/{id}": fetches.Handler(),
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	wf := NewWorkflow(client, WithPollConfig(PollConfig{Interval: time.Millisecond}))

	data := []byte("sample file")
	out, err := wf.Resolve(context.Background(), ComputeFingerprint(data), data, "sample.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeCompleted {
		t.Errorf("Kind = %v, want %v", out.Kind, OutcomeCompleted)
	}
	if uploads != 1 {
		t.Errorf("uploads = %d, want 1", uploads)
	}
	if diff := cmp.Diff([]string{"/file/job-9", "/file/job-9"}, fetches.Paths()); diff != "" {
		t.Errorf("fetch paths mismatch (-want +got):\n%s", diff)
	}
}

func TestPollConfigDefaults(t *testing.T) {
	got := PollConfig{MaxDuration: -time.Second}.withDefaults()
	want := DefaultPollConfig()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("withDefaults mismatch (-want +got):\n%s", diff)
	}

	got = PollConfig{CompletionThreshold: 100, MaxAttempts: 7}.withDefaults()
	if got.CompletionThreshold != 100 || got.MaxAttempts != 7 || got.Interval != defaultPollInterval {
		t.Errorf("withDefaults overrode set fields: %+v", got)
	}
}

func TestOutcomeKindString(t *testing.T) {
	tests := map[OutcomeKind]string{
		OutcomeFailed:    "failed",
		OutcomeCacheHit:  "cache_hit",
		OutcomeCompleted: "completed",
		OutcomeTimedOut:  "timed_out",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}
