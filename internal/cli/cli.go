package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Process roles. RoleAll runs the API and an in-process worker together.
const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

// CLIArgs are the command-line arguments for the flipradar binary.
type CLIArgs struct {
	// ConfigPath is an optional YAML file layered over the defaults.
	ConfigPath string

	// Role selects which components this process runs.
	Role string

	// Dev switches to human-readable debug logging.
	Dev bool

	// Demo runs the worker with the built-in demo scanner.
	Demo bool

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// RunsAPI reports whether the HTTP server should start.
func (a *CLIArgs) RunsAPI() bool { return a.Role == RoleAPI || a.Role == RoleAll }

// RunsWorker reports whether the scan worker should start.
func (a *CLIArgs) RunsWorker() bool { return a.Role == RoleWorker || a.Role == RoleAll }

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("flipradar", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to a YAML config file (optional)")
		role       = fs.String("role", RoleAll, "Process role: api|worker|all")
		dev        = fs.Bool("dev", false, "Console logging at debug level")
		demo       = fs.Bool("demo", false, "Process scans with the built-in demo scanner")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	r := strings.ToLower(strings.TrimSpace(*role))
	switch r {
	case RoleAPI, RoleWorker, RoleAll:
	default:
		return nil, fmt.Errorf("invalid -role %q (want api|worker|all)", *role)
	}
	if r == RoleWorker && !*demo {
		return nil, fmt.Errorf("-role worker needs a scanner; pass -demo")
	}

	return &CLIArgs{
		ConfigPath: *configPath,
		Role:       r,
		Dev:        *dev,
		Demo:       *demo,
		RawArgs:    args,
	}, nil
}
