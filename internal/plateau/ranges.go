package plateau

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strconv"
)

// Range is a half-open sample range [Start, End).
type Range struct {
	Start int
	End   int
}

// Valid reports whether r can be cut from a series of n samples. The first
// sample of an export is never part of a plateau.
func (r Range) Valid(n int) bool {
	return r.Start > 0 && r.End > r.Start && r.End <= n
}

// Len returns the number of samples in r.
func (r Range) Len() int {
	return max(0, r.End-r.Start)
}

// Ranges maps load level to plateau range.
type Ranges map[int]Range

// RangeFile holds the ranges of every raw export, keyed by file stem.
type RangeFile map[string]Ranges

// LoadRanges reads a ranges file of the form {"<stem>": {"5": [s, e], ...}}.
// A missing file yields an empty RangeFile.
func LoadRanges(path string) (RangeFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return RangeFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ranges file: %w", err)
	}

	var raw map[string]map[string][2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing ranges file %s: %w", path, err)
	}

	rf := make(RangeFile, len(raw))
	for stem, levels := range raw {
		ranges := make(Ranges, len(levels))
		for key, se := range levels {
			level, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("ranges file %s: %s has invalid level %q", path, stem, key)
			}
			ranges[level] = Range{Start: int(math.Round(se[0])), End: int(math.Round(se[1]))}
		}
		rf[stem] = ranges
	}
	return rf, nil
}

// SaveRanges writes rf in the format read by LoadRanges.
func SaveRanges(path string, rf RangeFile) error {
	raw := make(map[string]map[string][2]int, len(rf))
	for stem, ranges := range rf {
		levels := make(map[string][2]int, len(ranges))
		for level, r := range ranges {
			levels[strconv.Itoa(level)] = [2]int{r.Start, r.End}
		}
		raw[stem] = levels
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding ranges: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // Shared with the selection tool
		return fmt.Errorf("writing ranges file: %w", err)
	}
	return nil
}

// FixDuration shortens every range to its last n samples, keeping the end.
// Ranges with End 0 become (0, 0).
func FixDuration(ranges Ranges, n int) Ranges {
	out := make(Ranges, len(ranges))
	for level, r := range ranges {
		if r.End == 0 {
			out[level] = Range{}
			continue
		}
		out[level] = Range{Start: max(0, r.End-n), End: r.End}
	}
	return out
}

// Levels returns the levels of ranges in ascending order.
func (r Ranges) Levels() []int {
	levels := make([]int, 0, len(r))
	for l := range r {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	return levels
}

// Detect finds a plateau per level on the reference series.
//
// For each level, the longest run of consecutive samples whose value lies
// within ±tolerancePct percentage points of the level (relative to rated) is
// taken, if it has at least minSamples samples. Sample 0 and zero readings
// never belong to a plateau. Levels without a plateau are left out.
func Detect(ref []float64, rated float64, levels []int, tolerancePct float64, minSamples int) Ranges {
	out := make(Ranges)
	if rated <= 0 || len(ref) < 2 {
		return out
	}
	minSamples = max(1, minSamples)

	for _, level := range levels {
		lo := float64(level) - tolerancePct
		hi := float64(level) + tolerancePct

		best := Range{}
		start := -1
		for i := 1; i <= len(ref); i++ {
			in := false
			if i < len(ref) && ref[i] != 0 {
				pct := ref[i] / rated * 100
				in = pct >= lo && pct <= hi
			}
			switch {
			case in && start < 0:
				start = i
			case !in && start >= 0:
				if i-start > best.Len() {
					best = Range{Start: start, End: i}
				}
				start = -1
			}
		}

		if best.Len() >= minSamples {
			out[level] = best
		}
	}
	return out
}
