package plateau

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/sortedfile"
)

// rawValueMarker identifies device channels in a raw export.
const rawValueMarker = "ValueY"

var (
	phaseTokenPattern = regexp.MustCompile(`(?i)[_ ]?L[123][_ ]?`)
	phasePattern      = regexp.MustCompile(`L[123]`)
)

// Logger is the logging subset used by the slicer.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Channel is one device/phase column of a raw export.
type Channel struct {
	Device string
	Phase  string
	Column string
}

// deviceName strips the value marker and phase tokens from a raw column.
func deviceName(col string) string {
	name := strings.TrimSpace(strings.ReplaceAll(col, rawValueMarker, ""))
	name = phaseTokenPattern.ReplaceAllString(name, "")
	return strings.Trim(name, "_ ")
}

// Channels returns the ValueY channels of headers in header order.
// Columns without a phase token or device name are ignored.
func Channels(headers []string) []Channel {
	var out []Channel
	for _, h := range headers {
		if !strings.Contains(h, rawValueMarker) {
			continue
		}
		dev := deviceName(h)
		phase := phasePattern.FindString(h)
		if dev == "" || phase == "" {
			continue
		}
		out = append(out, Channel{Device: dev, Phase: phase, Column: h})
	}
	return out
}

// Devices returns the distinct device names of the ValueY columns, sorted.
func Devices(headers []string) []string {
	var devs []string
	for _, h := range headers {
		if !strings.Contains(h, rawValueMarker) {
			continue
		}
		if d := deviceName(h); d != "" && !slices.Contains(devs, d) {
			devs = append(devs, d)
		}
	}
	slices.Sort(devs)
	return devs
}

// Options configures a Slicer.
type Options struct {
	RawDir    string
	OutputDir string
	Levels    []int
	Phases    []string

	// Duration, when positive, shortens configured ranges to their last
	// Duration samples.
	Duration int

	TolerancePct float64
	MinSamples   int
}

// Slicer writes sorted files from raw exports. It records detected ranges
// and is not safe for concurrent use.
type Slicer struct {
	opts     Options
	ranges   RangeFile
	selector *measurement.ReferenceSelector
	logger   Logger
}

// NewSlicer creates a slicer using the ranges of rf. A nil rf means every
// file is detected automatically.
func NewSlicer(opts Options, rf RangeFile) *Slicer {
	if len(opts.Levels) == 0 {
		opts.Levels = measurement.DefaultLevels
	}
	if len(opts.Phases) == 0 {
		opts.Phases = measurement.DefaultPhases
	}
	if rf == nil {
		rf = RangeFile{}
	}

	return &Slicer{
		opts:   opts,
		ranges: rf,
		selector: measurement.NewReferenceSelector(func(d string) bool {
			l := strings.ToLower(d)
			return strings.Contains(l, "pac1") || strings.Contains(l, "einspeisung")
		}),
	}
}

// SetLogger sets the logger for per-file outcomes.
func (s *Slicer) SetLogger(logger Logger) {
	s.logger = logger
}

// Ranges returns the ranges used so far, including FixDuration rewrites and
// detected plateaus.
func (s *Slicer) Ranges() RangeFile {
	return s.ranges
}

// Result summarises a SliceAll run.
type Result struct {
	Written []string
	Skipped map[string]string
}

// SliceAll slices every raw export below RawDir. Files already sorted and
// helper exports are ignored; per-file failures are recorded in Skipped.
func (s *Slicer) SliceAll(ctx context.Context) (*Result, error) {
	var raws []string
	err := filepath.WalkDir(s.opts.RawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if s.opts.OutputDir != "" && filepath.Clean(path) == filepath.Clean(s.opts.OutputDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if isRawExport(d.Name()) {
			raws = append(raws, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.opts.RawDir, err)
	}

	res := &Result{Skipped: make(map[string]string)}
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.Slice(raw)
		if err != nil {
			res.Skipped[raw] = err.Error()
			if s.logger != nil {
				s.logger.Warn("raw export skipped", "file", raw, "reason", err)
			}
			continue
		}
		res.Written = append(res.Written, out)
		if s.logger != nil {
			s.logger.Info("sorted file written", "file", raw, "output", out)
		}
	}
	return res, nil
}

func isRawExport(name string) bool {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return false
	}
	for _, skip := range []string{"sortiert", "manuelle", "plot_data"} {
		if strings.Contains(name, skip) {
			return false
		}
	}
	return true
}

// Slice cuts the raw export at rawPath and returns the written path.
func (s *Slicer) Slice(rawPath string) (string, error) {
	tbl, err := sortedfile.Load(rawPath)
	if err != nil {
		return "", err
	}

	channels := Channels(tbl.Headers())
	if len(channels) == 0 {
		return "", ErrNoChannels
	}

	devices := Devices(tbl.Headers())
	ref, err := s.selector.Select(devices)
	if err != nil {
		return "", ErrNoChannels
	}
	ordered := append([]string{ref}, slices.DeleteFunc(slices.Clone(devices), func(d string) bool { return d == ref })...)

	series := make(map[Channel][]float64)
	for _, dev := range ordered {
		for _, phase := range s.opts.Phases {
			if ch, ok := lookup(channels, dev, phase); ok {
				series[Channel{Device: dev, Phase: phase}] = tbl.Filled(ch.Column)
			}
		}
	}

	stem := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	ranges := s.rangesFor(stem, series[Channel{Device: ref, Phase: s.opts.Phases[0]}])

	var cols []sortedfile.Column
	for _, level := range s.opts.Levels {
		r, ok := ranges[level]
		if !ok {
			continue
		}
		for _, phase := range s.opts.Phases {
			for _, dev := range ordered {
				vals, ok := series[Channel{Device: dev, Phase: phase}]
				if !ok || !r.Valid(len(vals)) {
					continue
				}
				cut := vals[r.Start:r.End]
				t := make([]float64, len(cut))
				for i := range t {
					t[i] = float64(i)
				}
				prefix := fmt.Sprintf("%02d_%s_%s", level, phase, dev)
				cols = append(cols,
					sortedfile.Column{Name: prefix + "_t", Values: t},
					sortedfile.Column{Name: prefix + "_I", Values: slices.Clone(cut)},
				)
			}
		}
	}
	if len(cols) == 0 {
		return "", ErrNoRanges
	}

	out := filepath.Join(s.opts.OutputDir, s.relDir(rawPath), stem+measurement.DefaultSortedSuffix)
	if err := sortedfile.Write(out, cols); err != nil {
		return "", err
	}
	return out, nil
}

// rangesFor returns the configured ranges of stem, or detects them on ref.
func (s *Slicer) rangesFor(stem string, ref []float64) Ranges {
	if r, ok := s.ranges[stem]; ok {
		if s.opts.Duration > 0 {
			r = FixDuration(r, s.opts.Duration)
			s.ranges[stem] = r
		}
		return r
	}

	detected := Detect(ref, measurement.RatedCurrent(stem), s.opts.Levels, s.opts.TolerancePct, s.opts.MinSamples)
	if len(detected) > 0 {
		s.ranges[stem] = detected
	}
	return detected
}

func (s *Slicer) relDir(rawPath string) string {
	dir := filepath.Dir(rawPath)
	if s.opts.RawDir == "" {
		return dir
	}
	rel, err := filepath.Rel(s.opts.RawDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(dir)
	}
	return rel
}

func lookup(channels []Channel, device, phase string) (Channel, bool) {
	for _, ch := range channels {
		if ch.Device == device && ch.Phase == phase {
			return ch, true
		}
	}
	return Channel{}, false
}
