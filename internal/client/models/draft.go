package models

import (
	"context"
	"encoding/json"
	"time"
)

// DraftPayload is the plaintext content of one editable document.
type DraftPayload struct {
	// Fields is the opaque document record.
	Fields json.RawMessage `json:"fields"`
	// Version is the optimistic version token last issued by the server for
	// the copy this draft is based on.
	Version int64 `json:"version"`
}

// NewDraftPayload marshals fields into a payload based on version.
func NewDraftPayload(fields any, version int64) (*DraftPayload, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &DraftPayload{Fields: b, Version: version}, nil
}

// Clone returns a deep copy so a scheduled save is not affected by later
// mutation of the caller's buffer.
func (p *DraftPayload) Clone() *DraftPayload {
	if p == nil {
		return nil
	}
	return &DraftPayload{Fields: append(json.RawMessage(nil), p.Fields...), Version: p.Version}
}

// RestoreDecision is the outcome of checking local storage on load. The zero
// value means there is no backup to offer.
type RestoreDecision struct {
	Restorable bool
	Payload    *DraftPayload
	CreatedAt  time.Time
}

// NoBackup is the decision when nothing newer than the server copy exists.
var NoBackup = RestoreDecision{}

// RemoteSaveFunc persists a draft on the server and returns the new version
// token. Any error means the save did not happen.
type RemoteSaveFunc func(ctx context.Context, id string, payload *DraftPayload) (int64, error)

// SyncResult reports a sync of the local backup. Version is the token issued
// by the server and is only meaningful when Synced is true.
type SyncResult struct {
	Synced  bool
	Version int64
}
