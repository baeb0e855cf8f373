// Package kv provides the device-local, unsynchronised key/value persistence
// used by the backup store.
//
// # Overview
//
// Repository is a flat byte-oriented store. SQLiteRepository persists records
// in the local_records table through a dbx.DBTX (either *sql.DB or *sql.Tx);
// MemoryRepository keeps them in a map for tests and ephemeral sessions.
//
// Values are opaque to this package. The backup store only ever writes
// ciphertext envelopes here.
//
// Typical Usage
//
//	repo := kv.NewSQLiteRepository(db)
//	_ = repo.Set(ctx, "draft-backup:note-1", blob)
//	v, _ := repo.Get(ctx, "draft-backup:note-1") // nil, nil when absent
//	keys, _ := repo.Keys(ctx, "draft-backup:")
package kv
