// Package measurement turns sorted current-transformer measurement files into
// comparison records.
//
// The pipeline for one file runs left to right:
//
//	file path ──▶ FilenameParser ──▶ MeasurementFile
//	headers   ──▶ ChannelResolver ──▶ ChannelMap (level, phase) → device → column
//	devices   ──▶ ReferenceSelector ──▶ reference device
//	columns   ──▶ StatisticsComputer ──▶ []ComparisonRecord
//
// Two comparison bases are produced per device, level and phase:
//
//   - ModeDeviceRef compares a device under test with the measured physical
//     reference channel. A device is never compared with itself and nothing is
//     emitted while the reference mean is not positive.
//   - ModeNominalRef compares every device, the reference included, with the
//     nameplate value rated_current × level/100. The nominal reference has no
//     variance.
//
// File identity is best effort. File names are expected to follow
// <date>-<manufacturer>-<model tokens>-<rated>A-<burden>, and names that do not
// fall back to the whole name as model key without a warning.
//
// Everything here is pure: no file system access and no shared state, so one
// file can be analysed per goroutine.
package measurement
