// Command rollup is the operator CLI: it loads ownership and position data,
// runs risk-stats ingestion jobs and prints reports against the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/bobmcallan/rollup/internal/app"
)

var (
	configPath string
	stdout     io.Writer = os.Stdout
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&ownershipCmd{}, "data")
	commander.Register(&positionsCmd{}, "data")
	commander.Register(&ingestRiskCmd{}, "data")
	commander.Register(&jobsCmd{}, "data")

	commander.Register(&reportCmd{}, "reports")
	commander.Register(&treeCmd{}, "reports")

	flag.StringVar(&configPath, "config", "", "path to rollup.toml (defaults to ROLLUP_CONFIG)")
	flag.Parse()
	ctx := context.Background()
	os.Exit(int(commander.Execute(ctx)))
}

// openApp initializes the shared core for one command.
func openApp() (*app.App, error) {
	return app.NewApp(configPath)
}

func fail(format string, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}

func usage(format string, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}
