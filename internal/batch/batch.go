// Package batch resolves several files, optionally in parallel, and records
// each outcome in the scan history.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	metadefender "github.com/Bob-Loth/opswat-demo"
	"github.com/Bob-Loth/opswat-demo/internal/history"
	"github.com/Bob-Loth/opswat-demo/internal/log"
)

// Resolver is implemented by *metadefender.Workflow.
type Resolver interface {
	Resolve(ctx context.Context, fp metadefender.Fingerprint, data []byte, filename string) (*metadefender.Outcome, error)
}

// Recorder is implemented by *history.Store.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Result is the outcome for one file. Outcome is nil when the file could not
// be read.
type Result struct {
	Path    string
	Outcome *metadefender.Outcome
	Err     error
}

// Options control a Runner.
type Options struct {
	// Concurrency is the number of files resolved at once. Values below 1 mean 1.
	Concurrency int
	// KeepGoing continues with the remaining files after a failure.
	KeepGoing bool
	// History, if set, receives one entry per resolved file.
	History Recorder
	// OnResult is called once per finished file. Calls never overlap.
	OnResult func(Result)
}

// Runner resolves files with a Resolver.
type Runner struct {
	resolver Resolver
	opts     Options
	readFile func(string) ([]byte, error)

	mu sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(r Resolver, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{resolver: r, opts: opts, readFile: os.ReadFile}
}

// Run resolves every path and returns the results in input order. Without
// KeepGoing the first failure cancels the files still pending and is
// returned; with KeepGoing every failure is returned combined.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	for i, path := range paths {
		results[i].Path = path
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, path := range paths {
		if !r.opts.KeepGoing && gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if !r.opts.KeepGoing && gctx.Err() != nil {
				results[i].Err = gctx.Err()
				return nil
			}
			res := r.resolveOne(gctx, path)
			results[i] = res
			r.emit(res)
			if res.Err != nil && !r.opts.KeepGoing {
				return res.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs error
	for _, res := range results {
		errs = multierr.Append(errs, res.Err)
	}
	return results, errs
}

func (r *Runner) resolveOne(ctx context.Context, path string) Result {
	data, err := r.readFile(path)
	if err != nil {
		return Result{Path: path, Err: fmt.Errorf("read %s: %w", path, err)}
	}

	fp := metadefender.ComputeFingerprint(data)
	log.Debugf("%s: fingerprint %s", path, fp)

	out, err := r.resolver.Resolve(ctx, fp, data, filepath.Base(path))
	res := Result{Path: path, Outcome: out}
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
	}

	if r.opts.History != nil && out != nil {
		r.record(ctx, path, out)
	}
	return res
}

func (r *Runner) record(ctx context.Context, path string, out *metadefender.Outcome) {
	entry, err := history.EntryFromOutcome(filepath.Base(path), out)
	if err == nil {
		_, err = r.opts.History.Record(context.WithoutCancel(ctx), entry)
	}
	if err != nil {
		log.Warnf("%s: history not recorded: %v", path, err)
	}
}

func (r *Runner) emit(res Result) {
	if r.opts.OnResult == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.OnResult(res)
}
