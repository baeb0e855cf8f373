// Package client contains the client-side collaborators of the draft backup
// subsystem that live outside the process.
//
// # Overview
//
// The package provides:
//  1. GRPCHealthPinger, a connectivity probe that calls the standard gRPC
//     health service of the draft server and maps status codes to sentinel
//     errors.
//  2. S3DraftSaver, a remote save function backed by S3-compatible object
//     storage with optimistic version checks.
//  3. OfflineSaver, the remote save used when no server is configured.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations), wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Transport conditions are exposed as sentinel errors that callers can match
// with errors.Is: ErrUnavailable, ErrUnauthorized. Version mismatches surface
// as common.ErrVersionConflict.
//
// All operations accept context.Context and honor cancellation/timeouts.
package client
