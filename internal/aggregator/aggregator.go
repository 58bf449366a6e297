package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/mqtt"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/sortedfile"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// Store persists merged records and the run history.
// Satisfied by *store.Store.
type Store interface {
	Replace(ctx context.Context, records []measurement.ComparisonRecord) (store.MergeStats, error)
	StartRun(ctx context.Context) (*store.Run, error)
	FinishRun(ctx context.Context, run *store.Run, runErr error) error
}

// Publisher announces a persisted run. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishStoreUpdated(ev mqtt.StoreUpdatedEvent) error
}

// Exporter copies the records of a run to a time-series database.
// Satisfied by *influxdb.Client.
type Exporter interface {
	Export(ctx context.Context, records []measurement.ComparisonRecord, at time.Time) error
}

// Logger is the logging interface used by the aggregator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of an Aggregator.
type Deps struct {
	Store    Store
	Parser   *measurement.FilenameParser
	Resolver *measurement.ChannelResolver
	Selector *measurement.ReferenceSelector
	Computer *measurement.StatisticsComputer

	// Publisher and Exporter are optional.
	Publisher Publisher
	Exporter  Exporter

	Logger Logger

	// SearchDir is walked recursively for files ending in Suffix.
	SearchDir string
	Suffix    string

	// Concurrency bounds the files analysed at once; < 1 means 1.
	Concurrency int
}

// Aggregator runs the pipeline. Run is safe for concurrent use; merges are
// serialised by the store.
type Aggregator struct {
	deps Deps
	now  func() time.Time
}

// New validates deps and creates an Aggregator.
func New(deps Deps) (*Aggregator, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Parser == nil:
		return nil, fmt.Errorf("%w: filename parser", ErrMissingDependency)
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: channel resolver", ErrMissingDependency)
	case deps.Selector == nil:
		return nil, fmt.Errorf("%w: reference selector", ErrMissingDependency)
	case deps.Computer == nil:
		return nil, fmt.Errorf("%w: statistics computer", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Suffix == "" {
		deps.Suffix = measurement.DefaultSortedSuffix
	}
	if deps.Concurrency < 1 {
		deps.Concurrency = 1
	}
	return &Aggregator{deps: deps, now: time.Now}, nil
}

// FileResult is the outcome of analysing one file.
type FileResult struct {
	Path    string                         `json:"path"`
	File    measurement.MeasurementFile    `json:"file"`
	Groups  int                            `json:"groups"`
	Records []measurement.ComparisonRecord `json:"-"`

	// SkipReason is empty when the file contributed records.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Skipped reports whether the file contributed no records.
func (r FileResult) Skipped() bool {
	return r.SkipReason != ""
}

// SkippedFile names a file that contributed no records.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary describes a completed run.
type Summary struct {
	RunID        string           `json:"run_id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	FilesFound   int              `json:"files_found"`
	FilesUsed    int              `json:"files_used"`
	FilesSkipped int              `json:"files_skipped"`
	Skipped      []SkippedFile    `json:"skipped,omitempty"`
	Computed     int              `json:"computed"`
	Merge        store.MergeStats `json:"merge"`
}

// Run executes one aggregation over SearchDir.
//
// The run is recorded in the store's history whatever its outcome. Returns
// ErrNothingToAggregate when no file yields a record; the prior store is
// left untouched in that case.
func (a *Aggregator) Run(ctx context.Context) (*Summary, error) {
	run, err := a.deps.Store.StartRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	log := a.deps.Logger
	log.Info("aggregation started", "run_id", run.ID, "search_dir", a.deps.SearchDir)

	sum, records, runErr := a.collect(ctx)
	sum.RunID = run.ID
	sum.StartedAt = run.StartedAt
	run.FilesFound, run.FilesUsed, run.FilesSkipped = sum.FilesFound, sum.FilesUsed, sum.FilesSkipped

	if runErr == nil {
		sum.Merge, runErr = a.deps.Store.Replace(ctx, records)
		if runErr != nil {
			runErr = fmt.Errorf("merging into store: %w", runErr)
		}
		run.Records = sum.Merge.Records
	}

	// The outcome is recorded even when ctx was cancelled.
	if err := a.deps.Store.FinishRun(context.WithoutCancel(ctx), run, runErr); err != nil {
		log.Warn("recording run outcome failed", "run_id", run.ID, "error", err)
	}
	sum.FinishedAt = run.FinishedAt
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = a.now().UTC()
	}

	if runErr != nil {
		log.Error("aggregation failed", "run_id", run.ID, "error", runErr)
		return sum, runErr
	}

	log.Info("aggregation finished",
		"run_id", run.ID,
		"files_found", sum.FilesFound,
		"files_used", sum.FilesUsed,
		"files_skipped", sum.FilesSkipped,
		"records", sum.Merge.Records,
		"duplicates", sum.Merge.Duplicates,
		"restored", sum.Merge.Restored,
	)

	a.announce(ctx, sum, records)
	return sum, nil
}

// collect discovers and analyses the files of SearchDir.
func (a *Aggregator) collect(ctx context.Context) (*Summary, []measurement.ComparisonRecord, error) {
	sum := &Summary{}

	paths, err := Discover(ctx, a.deps.SearchDir, a.deps.Suffix)
	if err != nil {
		return sum, nil, err
	}
	sum.FilesFound = len(paths)

	results, err := a.analyzeAll(ctx, paths)
	if err != nil {
		return sum, nil, err
	}

	var records []measurement.ComparisonRecord
	for _, r := range results {
		if r.Skipped() {
			sum.FilesSkipped++
			sum.Skipped = append(sum.Skipped, SkippedFile{Path: r.Path, Reason: r.SkipReason})
			a.deps.Logger.Warn("file skipped", "file", r.Path, "reason", r.SkipReason)
			continue
		}
		sum.FilesUsed++
		a.deps.Logger.Info("file processed", "file", r.Path, "groups", r.Groups, "records", len(r.Records))
		records = append(records, r.Records...)
	}
	sum.Computed = len(records)

	if len(records) == 0 {
		return sum, nil, fmt.Errorf("%w: %d files found under %s", ErrNothingToAggregate, sum.FilesFound, a.deps.SearchDir)
	}
	return sum, records, nil
}

// analyzeAll analyses paths on a bounded errgroup. Results keep path order.
func (a *Aggregator) analyzeAll(ctx context.Context, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.deps.Concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.AnalyzeFile(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysing files: %w", err)
	}
	return results, nil
}

// AnalyzeFile runs the per-file pipeline: identity from the path, channel
// groups from the header, then reference selection and statistics per group.
// It never fails; problems end up in SkipReason.
func (a *Aggregator) AnalyzeFile(path string) FileResult {
	res := FileResult{Path: path, File: a.deps.Parser.Parse(path)}

	table, err := sortedfile.Load(path)
	if err != nil {
		res.SkipReason = err.Error()
		return res
	}

	channels, err := a.deps.Resolver.Resolve(table.Headers())
	if err != nil {
		res.SkipReason = err.Error()
		return res
	}
	if channels.Len() == 0 {
		res.SkipReason = "no channel group matches the configured levels and phases"
		return res
	}

	for _, g := range channels.Groups() {
		ref, err := a.deps.Selector.SelectGroup(g)
		if err != nil {
			a.deps.Logger.Debug("group skipped", "file", path, "level", g.Level, "phase", g.Phase, "error", err)
			continue
		}
		recs, err := a.deps.Computer.Compute(res.File, g, ref, table)
		if err != nil {
			a.deps.Logger.Debug("group skipped", "file", path, "level", g.Level, "phase", g.Phase, "error", err)
			continue
		}
		if len(recs) > 0 {
			res.Groups++
			res.Records = append(res.Records, recs...)
		}
	}

	if len(res.Records) == 0 {
		res.SkipReason = "no numeric values in any channel group"
	}
	return res
}

// announce publishes and exports a persisted run. Failures are logged only.
func (a *Aggregator) announce(ctx context.Context, sum *Summary, records []measurement.ComparisonRecord) {
	if a.deps.Publisher != nil {
		ev := mqtt.StoreUpdatedEvent{
			RunID:        sum.RunID,
			Records:      sum.Merge.Records,
			FilesFound:   sum.FilesFound,
			FilesUsed:    sum.FilesUsed,
			FilesSkipped: sum.FilesSkipped,
			Timestamp:    sum.FinishedAt,
		}
		if err := a.deps.Publisher.PublishStoreUpdated(ev); err != nil {
			a.deps.Logger.Warn("publishing store update failed", "run_id", sum.RunID, "error", err)
		}
	}

	if a.deps.Exporter != nil {
		if err := a.deps.Exporter.Export(ctx, records, sum.FinishedAt); err != nil {
			a.deps.Logger.Warn("exporting records failed", "run_id", sum.RunID, "error", err)
		}
	}
}

// Discover returns the files under dir whose name ends in suffix, sorted.
// Hidden directories are not entered.
func Discover(ctx context.Context, dir, suffix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("search directory %s: %w", dir, err)
		}
		return nil, fmt.Errorf("discovering files: %w", err)
	}

	slices.Sort(paths)
	return paths, nil
}
