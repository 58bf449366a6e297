// Package sortedfile reads and writes the delimited tables exchanged between
// the plateau slicer and the aggregator.
//
// Lab exports arrive in whatever encoding and dialect the acquisition PC
// produced. Load tries, in order, the encodings UTF-16 (byte order mark
// required), UTF-8, Windows-1252 and Latin-1, and for each of them the
// dialects "semicolon with decimal comma" and "comma with decimal point".
// The first combination yielding more than one column is used.
//
// Files written by Write always use ";" as separator and "." as decimal mark.
package sortedfile
