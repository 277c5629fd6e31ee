// Package oldump mirrors the Open Library bulk dumps into a Hugging
// Face dataset repo. Each run reconciles every tracked artifact against
// the origin's modification marker: unchanged artifacts are skipped, a
// current mirror copy is reused instead of re-downloading, and only
// genuinely new content is fetched from the origin and uploaded. The
// durable record of what was synchronized when lives in a JSON manifest
// that is itself mirrored at the end of every run.
package oldump

import (
	"context"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sayshara/oldump/internal/chunker"
	"github.com/sayshara/oldump/internal/freshness"
	"github.com/sayshara/oldump/internal/origin"
	"github.com/sayshara/oldump/internal/retry"
	"github.com/sayshara/oldump/pkg/artifacts"
	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
)

// Origin is the upstream source of artifact bytes and freshness headers.
// Implemented by internal/origin; faked in tests.
type Origin interface {
	// LastModified returns the origin's opaque modification marker for
	// url, or an empty marker when the origin does not report one.
	LastModified(ctx context.Context, url string) (string, error)

	// Download streams the payload at url to the local path dest.
	Download(ctx context.Context, url, dest string) error
}

// Mirror is the managed remote dataset store. Implemented by
// internal/hub; faked in tests.
type Mirror interface {
	// WhoAmI validates credentials and returns the account name.
	WhoAmI(ctx context.Context) (string, error)

	// RevisionFile reports the mirror state of one file on a revision.
	RevisionFile(ctx context.Context, name, revision string) (freshness.MirrorInfo, error)

	// Download streams one mirrored file to the local path dest.
	Download(ctx context.Context, name, revision, dest string) error

	// Upload commits one local file to repoPath on revision.
	Upload(ctx context.Context, localPath, repoPath, revision, message string) error

	// EnsureBranch creates a branch if absent; creating an existing
	// branch is a no-op.
	EnsureBranch(ctx context.Context, branch string) error

	// DeleteFile commits a deletion of repoPath on revision.
	DeleteFile(ctx context.Context, repoPath, revision, message string) error
}

// Syncer drives the per-artifact reconciliation workflow. Construction
// wires all collaborators explicitly; there are no process-wide
// singletons.
type Syncer struct {
	fs           afero.Fs
	origin       Origin
	mirror       Mirror
	set          []artifacts.Artifact
	retry        *retry.Policy
	planner      *chunker.Planner
	clock        clockwork.Clock
	workDir      string
	manifestPath string
	chunkSize    int64
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithFs sets the filesystem all local IO goes through.
func WithFs(fs afero.Fs) Option {
	return func(s *Syncer) {
		s.fs = fs
	}
}

// WithOrigin sets the origin collaborator.
func WithOrigin(o Origin) Option {
	return func(s *Syncer) {
		s.origin = o
	}
}

// WithMirror sets the mirror-store collaborator.
func WithMirror(m Mirror) Option {
	return func(s *Syncer) {
		s.mirror = m
	}
}

// WithArtifacts sets the tracked artifact set.
func WithArtifacts(set []artifacts.Artifact) Option {
	return func(s *Syncer) {
		s.set = set
	}
}

// WithRetryPolicy sets the retry policy used for every network call.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(s *Syncer) {
		s.retry = p
	}
}

// WithChunkSize overrides the single-upload size limit.
func WithChunkSize(n int64) Option {
	return func(s *Syncer) {
		s.chunkSize = n
	}
}

// WithClock sets the clock used for manifest timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Syncer) {
		s.clock = clock
	}
}

// WithWorkDir sets the local working directory for downloads and the
// manifest document.
func WithWorkDir(dir string) Option {
	return func(s *Syncer) {
		s.workDir = dir
	}
}

// WithManifestPath overrides the manifest document location.
func WithManifestPath(path string) Option {
	return func(s *Syncer) {
		s.manifestPath = path
	}
}

// New creates a Syncer. A mirror collaborator is required; everything
// else has defaults.
func New(opts ...Option) (*Syncer, error) {
	s := &Syncer{
		fs:        afero.NewOsFs(),
		set:       artifacts.Defaults(),
		clock:     clockwork.NewRealClock(),
		workDir:   ".",
		chunkSize: constants.ChunkSizeBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.mirror == nil {
		return nil, &errors.ValidationError{Field: "Mirror",
			Message: "a mirror-store collaborator is required"}
	}
	if s.origin == nil {
		s.origin = origin.New(s.fs)
	}
	if s.retry == nil {
		s.retry = retry.New(retry.WithClock(s.clock))
	}
	if s.planner == nil {
		s.planner = chunker.New(s.fs, chunker.WithChunkSize(s.chunkSize))
	}
	if s.manifestPath == "" {
		s.manifestPath = filepath.Join(s.workDir, constants.DefaultManifestName)
	}

	return s, nil
}

// Artifacts returns the tracked artifact set.
func (s *Syncer) Artifacts() []artifacts.Artifact {
	return s.set
}

// ManifestPath returns the manifest document location.
func (s *Syncer) ManifestPath() string {
	return s.manifestPath
}
