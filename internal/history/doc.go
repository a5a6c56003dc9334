// Package history persists one compression record per source file in
// SQLite.
//
// Writes are upserts keyed by source path with two guards: transient
// statuses ("skipped", "file not found") are never stored, and a record that
// reached a completed status only accepts another completed status, so a
// late progress update cannot demote it. Zero-valued fields are left out of
// the write so partial updates never clobber recorded totals.
package history
