package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/aggregator"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/api"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/database"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/logging"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/mqtt"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/plateau"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// runAggregate performs one aggregation run and prints its summary.
func runAggregate(ctx context.Context, cfg *config.Config, log *logging.Logger, stdout io.Writer) error {
	a, err := openApp(ctx, cfg, log, true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	agg, err := a.newAggregator()
	if err != nil {
		return err
	}

	sum, err := agg.Run(ctx)
	if sum != nil {
		printSummary(stdout, sum)
	}
	return err
}

func printSummary(w io.Writer, sum *aggregator.Summary) {
	fmt.Fprintf(w, "run %s: %d files found, %d used, %d skipped\n",
		sum.RunID, sum.FilesFound, sum.FilesUsed, sum.FilesSkipped)
	for _, s := range sum.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Path, s.Reason)
	}
	if sum.Merge.Records > 0 {
		fmt.Fprintf(w, "%d records stored (%d computed, %d duplicates dropped, %d sidecars restored)\n",
			sum.Merge.Records, sum.Computed, sum.Merge.Duplicates, sum.Merge.Restored)
	}
}

// runSlice cuts raw exports into sorted files.
func runSlice(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("slice", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	saveRanges := fs.Bool("save-ranges", false, "write used and detected ranges back to the ranges file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	pc := cfg.Plateau
	ranges, err := plateau.LoadRanges(pc.RangesFile)
	if err != nil {
		return fmt.Errorf("loading ranges: %w", err)
	}

	slicer := plateau.NewSlicer(plateau.Options{
		RawDir:       pc.RawDir,
		OutputDir:    pc.OutputDir,
		Levels:       cfg.Aggregation.Levels,
		Phases:       cfg.Aggregation.Phases,
		Duration:     pc.Duration,
		TolerancePct: pc.TolerancePct,
		MinSamples:   pc.MinSamples,
	}, ranges)
	slicer.SetLogger(log.Component("plateau"))

	res, err := slicer.SliceAll(ctx)
	if err != nil {
		return fmt.Errorf("slicing %s: %w", pc.RawDir, err)
	}

	fmt.Fprintf(stdout, "%d sorted files written, %d raw exports skipped\n", len(res.Written), len(res.Skipped))
	for raw, reason := range res.Skipped {
		fmt.Fprintf(stdout, "  skipped %s: %s\n", raw, reason)
	}

	if *saveRanges {
		if err := plateau.SaveRanges(pc.RangesFile, slicer.Ranges()); err != nil {
			return fmt.Errorf("saving ranges: %w", err)
		}
		log.Info("ranges saved", "path", pc.RangesFile)
	}
	return nil
}

// assignments collects repeated -set name=value flags.
type assignments map[string]any

func (a assignments) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (a assignments) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	a[name] = value
	return nil
}

// runEdit sets sidecar values on every record of one source file.
func runEdit(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	file := fs.String("file", "", "source file name as stored (base name of the sorted file)")
	values := assignments{}
	fs.Var(values, "set", "sidecar assignment name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *file == "" || len(values) == 0 {
		return fmt.Errorf("%w: edit needs -file and at least one -set", errUsage)
	}

	a, err := openApp(ctx, cfg, log, true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.EditSidecar(ctx, *file, store.Sidecar(values))
	if err != nil {
		return fmt.Errorf("editing %s: %w", *file, err)
	}
	fmt.Fprintf(stdout, "%d records of %s updated\n", n, *file)

	if a.mqtt != nil {
		ev := mqtt.SidecarEditedEvent{SourceFile: *file, Rows: n, Values: values, Timestamp: time.Now().UTC()}
		if err := a.mqtt.PublishSidecarEdited(ev); err != nil {
			log.Warn("publishing sidecar edit failed", "error", err)
		}
	}
	return nil
}

// runExport writes the store as CSV to -out, or stdout for "-".
func runExport(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("out", "-", "output file, - for stdout")
	class := fs.Float64("class", cfg.Accuracy.Class, "accuracy class for the evaluation columns, 0 to omit them")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *class != 0 && !config.SupportedClass(*class) {
		return fmt.Errorf("%w: unsupported accuracy class %v", errUsage, *class)
	}

	a, err := openApp(ctx, cfg, log, false, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reading store: %w", err)
	}

	if *out == "-" {
		return store.WriteCSV(stdout, rows, a.store.Fields(), *class)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	if err := store.WriteCSV(f, rows, a.store.Fields(), *class); err != nil {
		f.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", *out, err)
	}
	log.Info("store exported", "path", *out, "records", len(rows))
	return nil
}

// runServe runs the HTTP API until ctx is cancelled. With MQTT enabled,
// aggregation commands on the bus trigger runs as well.
func runServe(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	a, err := openApp(ctx, cfg, log, true, cfg.MQTT.Enabled)
	if err != nil {
		return err
	}
	defer a.Close()

	agg, err := a.newAggregator()
	if err != nil {
		return err
	}

	deps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log.Component("api"),
		Store:         a.store,
		Aggregator:    agg,
		DB:            a.db,
		AccuracyClass: cfg.Accuracy.Class,
		Version:       version,
	}
	if a.mqtt != nil {
		deps.Events = a.mqtt
	}
	if a.influx != nil {
		deps.InfluxDB = a.influx
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}()

	if a.mqtt != nil {
		commands, err := a.mqtt.AggregateCommands()
		if err != nil {
			return fmt.Errorf("subscribing to aggregation commands: %w", err)
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			serveCommands(ctx, commands, srv.Aggregate, log)
		}()
		// Let a run in progress finish before the server and store close.
		defer func() { <-done }()
		log.Info("listening for aggregation commands", "topic", a.mqtt.Topics().AggregateCommand())
	}

	log.Info("ctaggregate serving", "address", srv.Addr(), "version", version)
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// serveCommands runs one aggregation per queued bus command, one at a time,
// until ctx ends. Failed runs are logged; the worker keeps going.
func serveCommands(ctx context.Context, commands <-chan mqtt.AggregateCommand,
	aggregate func(context.Context) (*aggregator.Summary, error), log *logging.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			log.Info("aggregation requested", "request_id", cmd.RequestID, "source", cmd.Source)
			if _, err := aggregate(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bus-triggered aggregation failed", "request_id", cmd.RequestID, "error", err)
			}
		}
	}
}

// runMigrate applies pending schema migrations and lists the applied ones.
// With -down it rolls back only the most recent migration instead.
func runMigrate(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	down := fs.Bool("down", false, "roll back the most recent migration")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best-effort close

	if *down {
		applied, _, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(stdout, "nothing to roll back")
			return nil
		}
		latest := applied[len(applied)-1].Version
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back %s: %w", latest, err)
		}
		log.Warn("migration rolled back", "version", latest)
		fmt.Fprintf(stdout, "rolled back %s\n", latest)
		return nil
	}

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(stdout, "%s applied %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	return nil
}
