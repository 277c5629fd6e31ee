// Package constants provides shared constants used throughout the oldump codebase.
// This includes timeouts, retry limits, transfer sizes, and file permissions
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// HeadTimeout is the timeout for origin HEAD requests
	HeadTimeout = 10 * time.Second

	// DownloadTimeout is the timeout for a single streaming download request
	DownloadTimeout = 30 * time.Minute

	// UploadTimeout is the timeout for a single upload commit
	UploadTimeout = 30 * time.Minute

	// HubAPITimeout is the timeout for Hub metadata calls (repo info, refs, whoami)
	HubAPITimeout = 30 * time.Second

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second
)

// Transfer constants define sizes and limits for moving artifact bytes
const (
	// MaxRetries is the maximum number of attempts for failed network operations
	MaxRetries = 3

	// ChunkSizeBytes is the largest payload the store accepts as a single file.
	// Anything larger is split into .partN files of at most this size.
	ChunkSizeBytes = 5 * 1024 * 1024 * 1024

	// CopyBufferSize is the buffer size for streaming copies to local disk
	CopyBufferSize = 1 << 20

	// MaxPruneChunks bounds the index scan when deleting uploaded chunk files
	MaxPruneChunks = 1000
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Well-known paths and identifiers for the mirror dataset
const (
	// DefaultManifestName is the file name of the persisted sync manifest
	DefaultManifestName = "ol_sync_manifest.json"

	// ManifestRepoPrefix is the repo directory the manifest is mirrored under
	ManifestRepoPrefix = "metadata"

	// DefaultRevision is the branch derived artifacts are stored on
	DefaultRevision = "main"

	// RawDumpRevision is the branch raw dump files are archived on
	RawDumpRevision = "backup/raw"
)
