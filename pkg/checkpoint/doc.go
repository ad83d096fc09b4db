// Package checkpoint persists export progress so an interrupted run can
// resume without refetching completed resources.
//
// Each export directory owns a single checkpoint.json tracking:
//   - Resources that finished exporting (never touched again)
//   - Partial progress markers for interrupted resources (last durable batch)
//   - The terminal export_complete flag
//
// A resource is recorded as either completed or partial, never both: marking
// a resource complete removes its partial marker in the same write.
//
// Every mutation is written to disk before the mutator returns, atomically
// (temp file, fsync, rename), so a crash at any point leaves either the old
// or the new checkpoint, never a torn one. A missing or corrupt checkpoint
// file loads as a fresh record rather than an error.
package checkpoint
