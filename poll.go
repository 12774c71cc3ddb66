package metadefender

import (
	"context"
	"fmt"
	"time"

	"github.com/Bob-Loth/opswat-demo/internal/log"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultPollMaxAttempts = 120
)

// PollConfig bounds the wait for an analysis to finish. Zero fields fall back
// to the values of DefaultPollConfig.
type PollConfig struct {
	// Interval is the fixed wait between fetches.
	Interval time.Duration
	// CompletionThreshold is the progress percentage treated as done.
	CompletionThreshold int
	// MaxAttempts is the maximum number of fetches.
	MaxAttempts int
	// MaxDuration optionally bounds the total time spent polling.
	MaxDuration time.Duration
}

// DefaultPollConfig returns a 5s interval, a threshold of 99 and 120 attempts.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:            defaultPollInterval,
		CompletionThreshold: DefaultCompletionThreshold,
		MaxAttempts:         defaultPollMaxAttempts,
	}
}

func (p PollConfig) withDefaults() PollConfig {
	d := DefaultPollConfig()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.CompletionThreshold <= 0 {
		p.CompletionThreshold = d.CompletionThreshold
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxDuration < 0 {
		p.MaxDuration = 0
	}
	return p
}

// ProgressFunc observes an in-progress report before the poller waits.
// attempt starts at 1.
type ProgressFunc func(dataID string, attempt int, report *AnalysisReport)

// poll fetches dataID until the report reaches the completion threshold.
// A fetch error aborts immediately; running out of attempts or time yields a
// poll timeout; canceling ctx during a wait yields a timeout error.
func (w *Workflow) poll(ctx context.Context, dataID string) (*AnalysisReport, error) {
	cfg := w.pollCfg
	start := w.now()

	for attempt := 1; ; attempt++ {
		report, err := w.scanner.FetchAnalysis(ctx, dataID)
		if err != nil {
			log.Debugf("polling %s aborted on attempt %d: %v", dataID, attempt, err)
			return nil, err
		}

		if report.IsComplete(cfg.CompletionThreshold) {
			log.Debugf("polling %s done on attempt %d at %d%%", dataID, attempt, report.Progress())
			return report, nil
		}

		log.Debugf("polling %s: %d%% after attempt %d", dataID, report.Progress(), attempt)
		if w.progress != nil {
			w.progress(dataID, attempt, report)
		}

		if attempt >= cfg.MaxAttempts {
			return nil, NewPollTimeoutError(fmt.Sprintf(
				"analysis %s still at %d%% after %d attempts", dataID, report.Progress(), attempt))
		}
		if cfg.MaxDuration > 0 && w.now().Sub(start)+cfg.Interval > cfg.MaxDuration {
			return nil, NewPollTimeoutError(fmt.Sprintf(
				"analysis %s still at %d%% after %s", dataID, report.Progress(), cfg.MaxDuration))
		}

		if err := w.sleep(ctx, cfg.Interval); err != nil {
			return nil, NewTimeoutError("polling canceled", err)
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
