package cli_test

import (
	"testing"

	"github.com/raysh454/flipradar/internal/cli"
)

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()
	args, err := cli.ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args.Role != cli.RoleAll || args.Dev || args.Demo || args.ConfigPath != "" {
		t.Errorf("unexpected defaults %+v", args)
	}
	if !args.RunsAPI() || !args.RunsWorker() {
		t.Error("role all should run both API and worker")
	}
}

func TestParseArgs_Flags(t *testing.T) {
	t.Parallel()
	args, err := cli.ParseArgs([]string{"-config", "flipradar.yaml", "-role", "API", "-dev", "-demo"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args.ConfigPath != "flipradar.yaml" || args.Role != cli.RoleAPI || !args.Dev || !args.Demo {
		t.Errorf("unexpected args %+v", args)
	}
	if args.RunsWorker() {
		t.Error("api role must not run the worker")
	}
	if len(args.RawArgs) != 6 {
		t.Errorf("expected raw args to be kept, got %v", args.RawArgs)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	t.Parallel()
	cases := map[string][]string{
		"unknown role":      {"-role", "scraper"},
		"unknown flag":      {"-target", "x"},
		"stray argument":    {"serve"},
		"worker needs demo": {"-role", "worker"},
	}
	for name, in := range cases {
		if _, err := cli.ParseArgs(in); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
