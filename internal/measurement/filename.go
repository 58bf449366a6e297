package measurement

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSortedSuffix marks files produced by the plateau slicer.
const DefaultSortedSuffix = "_sortiert.csv"

var (
	// ratedCurrentPattern matches a token such as "-100A-" or "_5A_".
	ratedCurrentPattern = regexp.MustCompile(`[-_](\d+)A[-_]`)

	// datePrefixPattern matches tokens that start with a four digit date part.
	datePrefixPattern = regexp.MustCompile(`^\d{4}`)

	// burdenPattern matches burden designators such as 8R1 or 10R.
	burdenPattern = regexp.MustCompile(`(?i)^\d+R\d*$`)

	// baseTypeSeparator splits a wandler key into tokens for base type derivation.
	baseTypeSeparator = regexp.MustCompile(`[_\s\-]+`)
)

// topologyTokens are wiring and phase tokens dropped from a base type.
var topologyTokens = map[string]bool{
	"parallel":    true,
	"dreieck":     true,
	"messstrecke": true,
	"l1":          true,
	"l2":          true,
	"l3":          true,
}

// ManufacturerRule maps a case-insensitive file name substring to a manufacturer.
type ManufacturerRule struct {
	Match string
	Name  string
}

// ParserOptions configures a FilenameParser.
type ParserOptions struct {
	// Manufacturers are tried in order; the first match wins.
	Manufacturers []ManufacturerRule

	// Fallback is used when no rule matches.
	Fallback string

	// SortedSuffix is stripped from the base name before parsing.
	SortedSuffix string
}

// DefaultParserOptions returns the manufacturer list used in the lab.
func DefaultParserOptions() ParserOptions {
	return ParserOptions{
		Manufacturers: []ManufacturerRule{
			{Match: "messstrecke", Name: "Messstrecke"},
			{Match: "mbs", Name: "MBS"},
			{Match: "celsa", Name: "Celsa"},
			{Match: "redur", Name: "Redur"},
		},
		Fallback:     "Andere",
		SortedSuffix: DefaultSortedSuffix,
	}
}

// FilenameParser derives MeasurementFile identity from file paths.
// It is safe for concurrent use.
type FilenameParser struct {
	rules    []ManufacturerRule
	fallback string
	suffix   string
}

// NewFilenameParser creates a parser. Empty Fallback and SortedSuffix take
// the defaults.
func NewFilenameParser(opts ParserOptions) *FilenameParser {
	defaults := DefaultParserOptions()
	if opts.Fallback == "" {
		opts.Fallback = defaults.Fallback
	}
	if opts.SortedSuffix == "" {
		opts.SortedSuffix = defaults.SortedSuffix
	}

	rules := make([]ManufacturerRule, 0, len(opts.Manufacturers))
	for _, r := range opts.Manufacturers {
		if r.Match == "" {
			continue
		}
		rules = append(rules, ManufacturerRule{Match: strings.ToLower(r.Match), Name: r.Name})
	}

	return &FilenameParser{rules: rules, fallback: opts.Fallback, suffix: opts.SortedSuffix}
}

// Parse derives the identity of the file at path.
//
// Parsing never fails. Names that do not follow the naming convention end up
// in the fallback manufacturer bucket with the whole name as model key.
func (p *FilenameParser) Parse(path string) MeasurementFile {
	base := filepath.Base(path)
	name := p.stem(base)

	mf := MeasurementFile{
		Path:         path,
		Folder:       filepath.Base(filepath.Dir(path)),
		SourceFile:   base,
		RatedCurrent: RatedCurrent(name),
		Manufacturer: p.manufacturer(name),
		Burden:       burdenToken(name),
	}
	// The loose token scan misses designators like "5VA" and a lower-case
	// "100a"; a strictly named file fills those gaps.
	if info, ok := ParseFilenameInfo(base); ok {
		if mf.Burden == "" {
			mf.Burden = info.Burden
		}
		if mf.RatedCurrent == 0 {
			mf.RatedCurrent = info.RatedCurrent
		}
	}
	mf.ModelKey = modelKey(name, mf.Manufacturer, mf.RatedCurrent)
	mf.WandlerKey = mf.Manufacturer + " " + mf.ModelKey

	return mf
}

// stem removes the sorted-file suffix, or the extension when the suffix is absent.
func (p *FilenameParser) stem(base string) string {
	if name, ok := strings.CutSuffix(base, p.suffix); ok {
		return name
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (p *FilenameParser) manufacturer(name string) string {
	lower := strings.ToLower(name)
	for _, r := range p.rules {
		if strings.Contains(lower, r.Match) {
			return r.Name
		}
	}
	return p.fallback
}

// RatedCurrent extracts the rated current in amps from a file name stem.
// It returns 0 when the name carries no "-<digits>A-" token.
func RatedCurrent(name string) float64 {
	m := ratedCurrentPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// modelKey guesses the model from the "-" separated tokens of name.
func modelKey(name, manufacturer string, rated float64) string {
	lowerMfr := strings.ToLower(manufacturer)
	ratedDigits := ""
	if rated > 0 {
		ratedDigits = strconv.FormatInt(int64(rated), 10)
	}

	var kept []string
	for _, tok := range strings.Split(name, "-") {
		if tok == "" || datePrefixPattern.MatchString(tok) {
			continue
		}
		if lowerMfr != "" && strings.Contains(strings.ToLower(tok), lowerMfr) {
			continue
		}
		if ratedDigits != "" && (tok == ratedDigits || strings.EqualFold(tok, ratedDigits+"A")) {
			continue
		}
		kept = append(kept, tok)
	}

	if len(kept) == 0 {
		return name
	}
	return strings.Join(kept, "_")
}

func burdenToken(name string) string {
	for _, tok := range strings.Split(name, "-") {
		if burdenPattern.MatchString(tok) {
			return tok
		}
	}
	return ""
}

// BaseType normalises a wandler key into the join key for sidecar data.
//
// Burden designators, wiring tokens (parallel, dreieck, messstrecke) and phase
// tokens are dropped; remaining tokens keep their order and are joined with
// single spaces.
func BaseType(wandlerKey string) string {
	tokens := baseTypeSeparator.Split(wandlerKey, -1)
	kept := tokens[:0]
	for _, tok := range tokens {
		if tok == "" || burdenPattern.MatchString(tok) || topologyTokens[strings.ToLower(tok)] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// FilenameInfo is the structured reading of a strictly named file.
type FilenameInfo struct {
	Date         string
	Manufacturer string
	Model        string
	RatedCurrent float64
	Burden       string
}

// minInfoParts is date, manufacturer, model, rated current and burden.
const minInfoParts = 5

// ParseFilenameInfo reads a name of the strict form
// <date>-<manufacturer>-<model>-<rated>A-<burden>[-...].
// ok is false when the name has fewer than five "-" separated parts, the
// first part is not a date or the fourth is not a current.
func ParseFilenameInfo(name string) (info FilenameInfo, ok bool) {
	name = filepath.Base(name)
	if stem, found := strings.CutSuffix(name, DefaultSortedSuffix); found {
		name = stem
	} else {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	parts := strings.Split(name, "-")
	if len(parts) < minInfoParts || !datePrefixPattern.MatchString(parts[0]) {
		return FilenameInfo{}, false
	}
	amps, found := strings.CutSuffix(strings.ToUpper(parts[3]), "A")
	if !found {
		return FilenameInfo{}, false
	}
	rated, err := strconv.ParseFloat(amps, 64)
	if err != nil {
		return FilenameInfo{}, false
	}

	return FilenameInfo{
		Date:         parts[0],
		Manufacturer: parts[1],
		Model:        parts[2],
		RatedCurrent: rated,
		Burden:       parts[4],
	}, true
}
