// ctaggregate - current transformer accuracy aggregation
//
// ctaggregate turns sorted measurement files of the external-field test bench
// into one comparison table per transformer, level, phase and device, keeps
// operator-maintained data (price, burden, dimensions, comment) across
// re-aggregations, and serves the table to dashboards.
//
// Usage:
//
//	ctaggregate [-config path] [command] [flags]
//
// Commands:
//
//	aggregate   analyse all sorted files and merge them into the store (default)
//	slice       cut raw exports into sorted files using saved or detected plateaus
//	edit        set sidecar values for every record of one source file
//	export      write the store as a CSV table
//	serve       run the HTTP API and listen for aggregation commands on MQTT
//	migrate     apply schema migrations, or roll back the latest with -down
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

	_ "github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/migrations"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errUsage marks command line mistakes; main prints usage for them.
var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "usage: ctaggregate [-config path] [aggregate|slice|edit|export|serve|migrate] [flags]")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination of command output (summaries, CSV export)
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ctaggregate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", getConfigPath(), "path to the YAML configuration")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	command, rest := "aggregate", fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded",
		"path", *configPath,
		"command", command,
		"commit", commit,
		"build_date", date,
	)

	switch command {
	case "aggregate":
		return runAggregate(ctx, cfg, log, stdout)
	case "slice":
		return runSlice(ctx, cfg, log, rest, stdout)
	case "edit":
		return runEdit(ctx, cfg, log, rest, stdout)
	case "export":
		return runExport(ctx, cfg, log, rest, stdout)
	case "serve":
		return runServe(ctx, cfg, log)
	case "migrate":
		return runMigrate(ctx, cfg, log, rest, stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// getConfigPath returns the configuration file path.
// Uses CTAGG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CTAGG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
