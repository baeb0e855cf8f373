// Package common contains shared constants and sentinel errors used across
// draftkeeper components.
package common

// BackupKeyPrefix namespaces every draft backup record in device-local storage.
// Only records under this prefix are ever listed or purged.
const BackupKeyPrefix = "draft-backup:"

// AccessTokenHeaderName is the gRPC metadata key carrying the session token.
const AccessTokenHeaderName = "authorization"
