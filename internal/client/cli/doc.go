// Package cli provides the interactive draft editor.
//
// It wires configuration, local backup storage, the backup controller,
// autosave and the connectivity watcher behind a small REPL. Typical flow:
// log in with a session token, open or create a draft, edit it, and let
// autosave keep a local encrypted backup until the server has the change.
//
// Key features:
//   - Login / Logout (logout wipes every local backup first)
//   - New / Open drafts, with a restore prompt for newer local backups
//   - Edit with debounced autosave, Save and Sync on demand
//   - Status, and a manual online/offline override
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, runREPL and the autosave package for details.
package cli
