package measurement

import (
	"fmt"
	"math"
)

// DefaultNominalRefName is the ref_name of nominal_ref records.
const DefaultNominalRefName = "Nennwert"

// DefaultPlaceholderNames are generic device names rewritten per manufacturer.
var DefaultPlaceholderNames = []string{"pruefling", "prüfling", "dut", "messwandler"}

// placeholderSuffix is appended to the manufacturer when a generic device
// name is rewritten.
const placeholderSuffix = " (Prüfling)"

// Columns gives numeric access to the columns of a parsed measurement file.
type Columns interface {
	// Values returns the numeric cells of column; non-numeric cells are dropped.
	Values(column string) []float64
}

// StatisticsComputer emits comparison records for one channel group.
// It is safe for concurrent use.
type StatisticsComputer struct {
	nominalRefName string
	placeholders   []string
}

// NewStatisticsComputer creates a computer. An empty nominalRefName and nil
// placeholders take the defaults.
func NewStatisticsComputer(nominalRefName string, placeholders []string) *StatisticsComputer {
	if nominalRefName == "" {
		nominalRefName = DefaultNominalRefName
	}
	if placeholders == nil {
		placeholders = DefaultPlaceholderNames
	}
	return &StatisticsComputer{nominalRefName: nominalRefName, placeholders: placeholders}
}

// Compute emits the records of group against reference ref.
//
// Devices are visited in group order. A device whose series is empty after
// coercion is skipped. For every remaining device:
//   - a device_ref record is emitted when the device is not the reference and
//     the reference mean is positive;
//   - a nominal_ref record is emitted when rated_current × level/100 is
//     positive, including for the reference device.
//
// An empty reference series counts as mean 0 and std 0, which suppresses
// device_ref records only.
//
// Returns ErrUnknownDevice when ref is not part of group.
func (c *StatisticsComputer) Compute(file MeasurementFile, group ChannelGroup, ref string, cols Columns) ([]ComparisonRecord, error) {
	refCol, ok := group.Columns[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q at %02d_%s", ErrUnknownDevice, ref, group.Level, group.Phase)
	}

	refValues := finite(cols.Values(refCol))
	refMean, refStd := Mean(refValues), SampleStd(refValues)
	nominal := file.RatedCurrent * float64(group.Level) / 100

	base := ComparisonRecord{
		WandlerKey:   file.WandlerKey,
		BaseType:     BaseType(file.WandlerKey),
		Folder:       file.Folder,
		Phase:        group.Phase,
		TargetLoad:   group.Level,
		RatedCurrent: file.RatedCurrent,
		Manufacturer: file.Manufacturer,
		Burden:       file.Burden,
		SourceFile:   file.SourceFile,
	}

	var records []ComparisonRecord
	for _, dev := range group.Devices {
		values := finite(cols.Values(group.Columns[dev]))
		if len(values) == 0 {
			continue
		}

		rec := base
		rec.DUTName = c.displayName(dev, file.Manufacturer)
		rec.DUTMean = Mean(values)
		rec.DUTStd = SampleStd(values)

		// The rewritten name must not collide with the reference either.
		if dev != ref && refMean > 0 && rec.DUTName != ref {
			dr := rec
			dr.RefName = ref
			dr.RefMean = refMean
			dr.RefStd = refStd
			dr.Mode = ModeDeviceRef
			records = append(records, dr)
		}

		if nominal > 0 {
			nr := rec
			nr.RefName = c.nominalRefName
			nr.RefMean = nominal
			nr.RefStd = 0
			nr.Mode = ModeNominalRef
			records = append(records, nr)
		}
	}

	return records, nil
}

func (c *StatisticsComputer) displayName(device, manufacturer string) string {
	if IsPlaceholder(device, c.placeholders) {
		return manufacturer + placeholderSuffix
	}
	return device
}

// finite drops NaN and infinite values.
func finite(values []float64) []float64 {
	out := values[:0:0]
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStd returns the sample standard deviation (n−1 denominator).
// Fewer than two values yield 0.
func SampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
