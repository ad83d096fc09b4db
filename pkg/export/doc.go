// Package export orchestrates full export runs: it owns the export
// directory, its advisory lock, and the per-resource state machine that
// turns the declared resource plan into flat files.
//
// A run walks the plan in order. Resources completed by a previous run are
// skipped; interrupted ones resume according to the fetch mode (paged mode
// appends from the last durable batch, monolithic mode refetches and
// replaces); failures are isolated so one broken resource never blocks the
// rest. The checkpoint's terminal flag flips only when every planned
// resource has settled.
package export
