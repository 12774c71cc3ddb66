// Package cli parses mdscan command lines.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Bob-Loth/opswat-demo/internal/config"
)

// Commands.
const (
	CommandScan    = "scan"
	CommandHistory = "history"
)

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage error")

// Usage is printed on usage errors and for -h.
const Usage = `usage:
  mdscan [flags] FILE...
  mdscan history [-config PATH] [-history PATH] [-n N]

Looks each FILE up on MetaDefender by SHA-256, uploads it if unknown and
prints the scan report. The API key is read from $OPSWAT_API_KEY.

flags:
  -config PATH       YAML config file (default $MDSCAN_CONFIG)
  -base-url URL      API base URL
  -interval D        wait between polls, e.g. 5s
  -threshold N       progress percentage treated as complete (1..100)
  -max-attempts N    maximum number of polls per file
  -timeout D         per-request timeout
  -history PATH      record outcomes in this SQLite database
  -concurrency N     files resolved at once
  -keep-going        continue with remaining files after a failure
  -v                 verbose logging
`

// Args is a parsed command line. Only flags given explicitly override the
// config file; see Apply.
type Args struct {
	Command    string
	ConfigPath string
	Files      []string
	// Limit is the number of history entries to list.
	Limit int

	BaseURL     string
	Interval    time.Duration
	Threshold   int
	MaxAttempts int
	Timeout     time.Duration
	HistoryPath string
	Concurrency int
	KeepGoing   bool
	Verbose     bool

	// RawArgs is the original args slice.
	RawArgs []string

	set map[string]bool
}

// ParseArgs parses args, which exclude the program name. It does not read
// os.Args and never writes to stdout or stderr. flag.ErrHelp is returned
// for -h; other problems wrap ErrUsage.
func ParseArgs(args []string) (*Args, error) {
	a := &Args{Command: CommandScan, RawArgs: args, set: map[string]bool{}}
	rest := args
	if len(rest) > 0 && rest[0] == CommandHistory {
		a.Command = CommandHistory
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("mdscan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.ConfigPath, "config", "", "YAML config file")
	fs.StringVar(&a.HistoryPath, "history", "", "history database")
	fs.BoolVar(&a.Verbose, "v", false, "verbose logging")

	if a.Command == CommandHistory {
		fs.IntVar(&a.Limit, "n", 20, "number of entries")
	} else {
		fs.StringVar(&a.BaseURL, "base-url", "", "API base URL")
		fs.DurationVar(&a.Interval, "interval", 0, "wait between polls")
		fs.IntVar(&a.Threshold, "threshold", 0, "completion threshold")
		fs.IntVar(&a.MaxAttempts, "max-attempts", 0, "maximum polls per file")
		fs.DurationVar(&a.Timeout, "timeout", 0, "per-request timeout")
		fs.IntVar(&a.Concurrency, "concurrency", 0, "files resolved at once")
		fs.BoolVar(&a.KeepGoing, "keep-going", false, "continue after a failure")
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	fs.Visit(func(f *flag.Flag) { a.set[f.Name] = true })

	switch a.Command {
	case CommandHistory:
		if fs.NArg() > 0 {
			return nil, fmt.Errorf("%w: history takes no arguments, got %q", ErrUsage, fs.Args())
		}
		if a.Limit < 1 {
			return nil, fmt.Errorf("%w: -n must be positive, got %d", ErrUsage, a.Limit)
		}
	default:
		a.Files = fs.Args()
		if len(a.Files) == 0 {
			return nil, fmt.Errorf("%w: no files given", ErrUsage)
		}
	}
	return a, nil
}

// Apply overrides cfg with the flags that were given on the command line.
func (a *Args) Apply(cfg *config.Config) {
	if a.set["base-url"] {
		cfg.BaseURL = a.BaseURL
	}
	if a.set["interval"] {
		cfg.Poll.Interval = a.Interval
	}
	if a.set["threshold"] {
		cfg.Poll.Threshold = a.Threshold
	}
	if a.set["max-attempts"] {
		cfg.Poll.MaxAttempts = a.MaxAttempts
	}
	if a.set["timeout"] {
		cfg.Timeout = a.Timeout
	}
	if a.set["history"] {
		cfg.History.Path = a.HistoryPath
	}
	if a.set["concurrency"] {
		cfg.Concurrency = a.Concurrency
	}
	if a.set["keep-going"] {
		cfg.KeepGoing = a.KeepGoing
	}
	if a.set["v"] {
		cfg.Verbose = a.Verbose
	}
}
