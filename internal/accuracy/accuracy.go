// Package accuracy evaluates comparison records against the ratio error
// limits of current transformer accuracy classes.
package accuracy

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// ErrUnsupportedClass is returned for accuracy classes without a limit table.
var ErrUnsupportedClass = errors.New("accuracy: unsupported class")

// limitLevels are the load points (percent of rated current) of the limit tables.
var limitLevels = []float64{1, 5, 20, 100, 120}

// limitTables hold the permissible ratio error in percent per class at
// limitLevels. NaN marks a load point where the class defines no limit.
var limitTables = map[float64][]float64{
	0.2: {0.75, 0.35, 0.2, 0.2, 0.2},
	0.5: {1.5, 1.5, 0.75, 0.5, 0.5},
	1:   {3.0, 1.5, 1.0, 1.0, 1.0},
	3:   {math.NaN(), 3.0, 3.0, 3.0, 3.0},
}

// Classes returns the supported accuracy classes in ascending order.
func Classes() []float64 {
	return []float64{0.2, 0.5, 1, 3}
}

// Point is one corner of a limit curve.
type Point struct {
	Level    float64 `json:"level"`
	LimitPct float64 `json:"limit_pct"`
}

// Limits returns the defined corner points of class.
func Limits(class float64) ([]Point, error) {
	table, ok := limitTables[class]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedClass, class)
	}
	points := make([]Point, 0, len(table))
	for i, v := range table {
		if math.IsNaN(v) {
			continue
		}
		points = append(points, Point{Level: limitLevels[i], LimitPct: v})
	}
	return points, nil
}

// Limit returns the permissible ratio error of class at level, interpolated
// linearly between the table points and clamped outside them. ok is false
// when the class is unknown or defines no limit at that level.
func Limit(class, level float64) (limit float64, ok bool) {
	table, found := limitTables[class]
	if !found {
		return 0, false
	}

	switch {
	case level <= limitLevels[0]:
		limit = table[0]
	case level >= limitLevels[len(limitLevels)-1]:
		limit = table[len(table)-1]
	default:
		for i := 1; i < len(limitLevels); i++ {
			if level > limitLevels[i] {
				continue
			}
			x0, x1 := limitLevels[i-1], limitLevels[i]
			y0, y1 := table[i-1], table[i]
			if level == x1 {
				limit = y1
			} else {
				limit = y0 + (y1-y0)*(level-x0)/(x1-x0)
			}
			break
		}
	}

	if math.IsNaN(limit) {
		return 0, false
	}
	return limit, true
}

// RatioError returns (dut − ref) / ref in percent. ok is false when ref is
// not positive.
func RatioError(dutMean, refMean float64) (float64, bool) {
	if refMean <= 0 {
		return 0, false
	}
	return (dutMean - refMean) / refMean * 100, true
}

// Result is the evaluation of one record.
type Result struct {
	ErrorPct float64 `json:"error_pct"`
	StdPct   float64 `json:"std_pct"`
	LimitPct float64 `json:"limit_pct"`

	// Within is true when the ratio error magnitude does not exceed the limit.
	Within bool `json:"within"`

	// OK is false when no ratio error or limit could be determined.
	OK bool `json:"ok"`
}

// Evaluate computes the ratio error of r and checks it against class.
func Evaluate(r measurement.ComparisonRecord, class float64) Result {
	errPct, ok := RatioError(r.DUTMean, r.RefMean)
	if !ok {
		return Result{}
	}
	res := Result{ErrorPct: errPct, StdPct: r.DUTStd / r.RefMean * 100}

	limit, ok := Limit(class, float64(r.TargetLoad))
	if !ok {
		return res
	}
	res.LimitPct = limit
	res.Within = math.Abs(errPct) <= limit
	res.OK = true
	return res
}

var labelBurden = regexp.MustCompile(`^\d+R\d*$`)

// Label builds the display name of a record: the wandler key without its
// burden, the device when the key does not name it, the burden in ohms, the
// wiring taken from the folder and the operator comment.
func Label(r measurement.ComparisonRecord, comment string) string {
	var parts []string
	burden := ""
	for _, tok := range strings.FieldsFunc(r.WandlerKey, func(c rune) bool { return c == '_' || c == ' ' || c == '\t' }) {
		if labelBurden.MatchString(tok) {
			burden = strings.Replace(tok, "R", ",", 1) + " Ω"
			continue
		}
		parts = append(parts, tok)
	}

	label := strings.Join(parts, " ")
	if !strings.Contains(strings.ToLower(label), strings.ToLower(r.DUTName)) {
		label += " | " + r.DUTName
	}
	if burden != "" {
		label += " | " + burden
	}

	folder := strings.ToLower(r.Folder)
	switch {
	case strings.Contains(folder, "parallel"):
		label += " | Parallel"
	case strings.Contains(folder, "dreieck"):
		label += " | Dreieck"
	}

	if c := strings.TrimSpace(comment); c != "" {
		label += " | " + c
	}
	return label
}
