// Package store persists comparison records and keeps operator-maintained
// sidecar fields alive across re-aggregation.
//
// # Merge
//
// Merge is pure. Given freshly computed records and the rows of the previous
// store it:
//
//  1. rescues the sidecar of every base type from the prior rows, the last
//     row of a base type winning;
//  2. deduplicates the new records on their dedup key, the last duplicate
//     winning at its own position;
//  3. recomputes base_type;
//  4. gives every row default sidecar values and overwrites them field by
//     field from the rescued sidecar of its base type.
//
// # Store
//
// Store is the explicit handle on the SQLite table. Replace runs
// load → Merge → Persist as one critical section, and Persist swaps the
// whole table inside a single transaction so readers never observe a
// partial store. EditSidecar is the operator path: it rewrites only the
// sidecar of rows with a given source file and stamps the edit time, which
// orders those rows last on the next Load.
//
// Stores created by older releases may lack columns; Load checks column
// presence and defaults whatever is missing.
package store
