package measurement

// Mode is the comparison basis of a ComparisonRecord.
type Mode string

// Comparison modes.
const (
	// ModeDeviceRef compares a device with the measured reference channel.
	ModeDeviceRef Mode = "device_ref"

	// ModeNominalRef compares a device with the nameplate value of the level.
	ModeNominalRef Mode = "nominal_ref"
)

// Valid reports whether m is a known comparison mode.
func (m Mode) Valid() bool {
	return m == ModeDeviceRef || m == ModeNominalRef
}

// MeasurementFile is the identity of one sorted measurement file, derived
// from its path alone.
type MeasurementFile struct {
	// Path is the path the file was discovered at.
	Path string `json:"path"`

	// Folder is the name of the directory holding the file (wiring/sort group).
	Folder string `json:"folder"`

	// SourceFile is the base name of the file.
	SourceFile string `json:"source_file"`

	Manufacturer string `json:"manufacturer"`

	// RatedCurrent in amps; 0 means unknown.
	RatedCurrent float64 `json:"rated_current"`

	ModelKey   string `json:"model_key"`
	WandlerKey string `json:"wandler_key"`

	// Burden designator such as "8R1", empty when the name carries none.
	Burden string `json:"burden,omitempty"`
}

// GroupKey identifies a channel group inside one file.
type GroupKey struct {
	Level int
	Phase string
}

// ChannelGroup maps the devices measured at one (level, phase) to their
// value columns.
type ChannelGroup struct {
	Level int
	Phase string

	// Devices in header order, without duplicates.
	Devices []string

	// Columns maps device name to column name.
	Columns map[string]string
}

// Has reports whether device is part of the group.
func (g ChannelGroup) Has(device string) bool {
	_, ok := g.Columns[device]
	return ok
}

// ComparisonRecord is one persisted comparison of a device against a
// reference at one load level and phase.
//
// (WandlerKey, Folder, Phase, TargetLoad, DUTName, Mode, SourceFile) is
// unique in the store.
type ComparisonRecord struct {
	WandlerKey   string  `json:"wandler_key"`
	BaseType     string  `json:"base_type"`
	Folder       string  `json:"folder"`
	Phase        string  `json:"phase"`
	TargetLoad   int     `json:"target_load"`
	RatedCurrent float64 `json:"rated_current"`
	Manufacturer string  `json:"manufacturer"`
	Burden       string  `json:"burden"`
	DUTName      string  `json:"dut_name"`
	DUTMean      float64 `json:"dut_mean"`
	DUTStd       float64 `json:"dut_std"`
	RefName      string  `json:"ref_name"`
	RefMean      float64 `json:"ref_mean"`
	RefStd       float64 `json:"ref_std"`
	Mode         Mode    `json:"comparison_mode"`
	SourceFile   string  `json:"source_file"`
}

// DedupKey is the uniqueness key of a ComparisonRecord.
type DedupKey struct {
	WandlerKey string
	Folder     string
	Phase      string
	TargetLoad int
	DUTName    string
	Mode       Mode
	SourceFile string
}

// Key returns the dedup key of r.
func (r ComparisonRecord) Key() DedupKey {
	return DedupKey{
		WandlerKey: r.WandlerKey,
		Folder:     r.Folder,
		Phase:      r.Phase,
		TargetLoad: r.TargetLoad,
		DUTName:    r.DUTName,
		Mode:       r.Mode,
		SourceFile: r.SourceFile,
	}
}
