// Command mdscan looks files up on MetaDefender by SHA-256, uploads the ones
// the service has not seen and prints their scan reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	metadefender "github.com/Bob-Loth/opswat-demo"
	"github.com/Bob-Loth/opswat-demo/internal/batch"
	"github.com/Bob-Loth/opswat-demo/internal/cli"
	"github.com/Bob-Loth/opswat-demo/internal/config"
	"github.com/Bob-Loth/opswat-demo/internal/history"
	"github.com/Bob-Loth/opswat-demo/internal/log"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app holds what one invocation needs.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a, err := cli.ParseArgs(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stdout, cli.Usage)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "mdscan: %v\n\n%s", err, cli.Usage)
		return exitUsage
	}

	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "mdscan: %v\n", err)
		return exitUsage
	}
	a.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "mdscan: %v\n", err)
		return exitUsage
	}
	log.SetLogger(log.NewDefaultLogger(stderr, cfg.Verbose))

	ap := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	if a.Command == cli.CommandHistory {
		return ap.history(ctx, a.Limit)
	}
	return ap.scan(ctx, a.Files)
}

func (ap *app) scan(ctx context.Context, files []string) int {
	key, err := config.APIKeyFromEnv()
	if err != nil {
		fmt.Fprintf(ap.stderr, "mdscan: %v. Set %s to your MetaDefender API key.\n", err, metadefender.EnvAPIKey)
		return exitUsage
	}

	client, err := metadefender.NewClient(key, ap.cfg.ClientOptions()...)
	if err != nil {
		fmt.Fprintf(ap.stderr, "mdscan: %v\n", err)
		if metadefender.IsConfigurationError(err) {
			return exitUsage
		}
		return exitFailure
	}
	defer client.Close()

	wf := metadefender.NewWorkflow(client,
		metadefender.WithPollConfig(ap.cfg.PollConfig()),
		metadefender.WithProgressFunc(func(dataID string, attempt int, r *metadefender.AnalysisReport) {
			log.Infof("%s: %d%% complete (poll %d)", dataID, r.Progress(), attempt)
		}),
	)

	opts := batch.Options{
		Concurrency: ap.cfg.Concurrency,
		KeepGoing:   ap.cfg.KeepGoing,
		OnResult:    ap.printResult(len(files) > 1),
	}
	if ap.cfg.History.Path != "" {
		store, err := history.Open(ap.cfg.History.Path)
		if err != nil {
			fmt.Fprintf(ap.stderr, "mdscan: %v\n", err)
			return exitFailure
		}
		defer store.Close()
		opts.History = store
	}

	if _, err := batch.NewRunner(wf, opts).Run(ctx, files); err != nil {
		log.Debugf("run finished with errors: %v", err)
		return exitFailure
	}
	return exitOK
}

func (ap *app) printResult(withHeader bool) func(batch.Result) {
	return func(res batch.Result) {
		if res.Err != nil {
			fmt.Fprintf(ap.stderr, "mdscan: %v\n", res.Err)
			return
		}
		if withHeader {
			fmt.Fprintf(ap.stdout, "==> %s <==\n", res.Path)
		}
		if err := metadefender.WriteReport(ap.stdout, res.Outcome.Report); err != nil {
			fmt.Fprintf(ap.stderr, "mdscan: %s: %v\n", res.Path, err)
		}
	}
}

func (ap *app) history(ctx context.Context, limit int) int {
	if ap.cfg.History.Path == "" {
		fmt.Fprintln(ap.stderr, "mdscan: no history database; use -history or set history.path in the config file")
		return exitUsage
	}
	store, err := history.Open(ap.cfg.History.Path)
	if err != nil {
		fmt.Fprintf(ap.stderr, "mdscan: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	entries, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(ap.stderr, "mdscan: %v\n", err)
		return exitFailure
	}

	tw := tabwriter.NewWriter(ap.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFILE\tOUTCOME\tVERDICT\tSHA256")
	for _, e := range entries {
		verdict := e.Verdict
		if verdict == "" {
			verdict = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Filename, e.Outcome, verdict, e.Fingerprint)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(ap.stderr, "mdscan: %v\n", err)
		return exitFailure
	}
	return exitOK
}
