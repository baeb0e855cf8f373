// Package autosave drives periodic local backups of open drafts.
//
// A Scheduler owns one draft identity. Edits are debounced on the trailing
// edge; when the delay elapses the latest payload is backed up locally and,
// while online, pushed to the server. Connectivity changes arrive through
// SetOnline, usually fanned out by a Registry that a Watcher feeds.
//
// Being offline is a normal operating mode and never puts a scheduler into
// the Error state. Error means the last save reached neither local storage
// nor the server.
package autosave
