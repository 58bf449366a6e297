// Package plateau cuts raw acquisition exports into sorted measurement files.
//
// A raw export holds one ValueY column per device and phase, recorded while
// the test bench steps through the load levels. For every level a plateau
// (start, end) sample range is taken either from the ranges file maintained
// by the plateau selection tool or, when a file has no entry, from automatic
// detection on the reference channel. The sliced series are written as
// <output>/<relative dir>/<stem>_sortiert.csv with columns
// {LL}_{phase}_{device}_t and {LL}_{phase}_{device}_I.
package plateau
