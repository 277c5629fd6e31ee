// Package sync provides options and results for the dump
// reconciliation run driven by Syncer.Sync.
package sync

import (
	"time"

	"github.com/sayshara/oldump/pkg/artifacts"
	"github.com/sayshara/oldump/pkg/errors"
)

// Options controls one reconciliation run.
type Options struct {
	// DryRun disables all network writes and filesystem mutation while
	// still exercising the decision logic with synthetic origin input.
	DryRun bool

	// KeepLocal overrides the default post-upload deletion for every
	// artifact, not just the retention-exempt class.
	KeepLocal bool

	// Only restricts the run to a single named artifact.
	Only string

	// UploadOnly uploads a single already-local file (chunked) and
	// records it, without any origin check.
	UploadOnly string

	// Timeout bounds the whole run. Zero means no bound.
	Timeout time.Duration
}

// Defaults returns the default run options.
func Defaults() *Options {
	return &Options{}
}

// Apply applies the given options.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks the options against the configured artifact set.
func (o *Options) Validate(set []artifacts.Artifact) error {
	if o.Timeout < 0 {
		return &errors.ValidationError{Field: "Timeout", Value: o.Timeout,
			Message: "timeout must be non-negative"}
	}
	if o.Only != "" && o.UploadOnly != "" {
		return &errors.ValidationError{Field: "Only", Value: o.Only,
			Message: "only and upload-only are mutually exclusive"}
	}
	if o.Only != "" {
		if _, found := artifacts.Find(set, o.Only); !found {
			return &errors.ValidationError{Field: "Only", Value: o.Only,
				Message: "unknown artifact name"}
		}
	}
	return nil
}

// Option is a function that configures run Options.
type Option func(*Options)

// WithDryRun configures dry run mode.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithKeepLocal configures whether local files are kept after upload.
func WithKeepLocal(keep bool) Option {
	return func(o *Options) {
		o.KeepLocal = keep
	}
}

// WithOnly restricts the run to a single artifact.
func WithOnly(name string) Option {
	return func(o *Options) {
		o.Only = name
	}
}

// WithUploadOnly configures an upload-only run for a single file.
func WithUploadOnly(name string) Option {
	return func(o *Options) {
		o.UploadOnly = name
	}
}

// WithTimeout bounds the whole run.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}
