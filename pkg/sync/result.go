package sync

import (
	"fmt"
	"strings"
)

// Outcome is the terminal state of one artifact's workflow.
type Outcome int

const (
	// OutcomeSkipped means the local copy was already current.
	OutcomeSkipped Outcome = iota

	// OutcomeReused means the mirror's copy was restored locally and no
	// upload was needed.
	OutcomeReused

	// OutcomeFetched means the payload was downloaded from the origin
	// and uploaded to the mirror.
	OutcomeFetched

	// OutcomeUploaded means an already-local file was uploaded without
	// an origin check (upload-only mode).
	OutcomeUploaded

	// OutcomeFailed means the artifact's workflow ended in error.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeReused:
		return "reused"
	case OutcomeFetched:
		return "fetched"
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ArtifactResult records how one artifact's workflow ended.
type ArtifactResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// Result is the outcome of a full reconciliation run.
type Result struct {
	Artifacts []ArtifactResult
	DryRun    bool
}

// count returns the number of artifacts with the given outcome.
func (r *Result) count(o Outcome) int {
	n := 0
	for _, a := range r.Artifacts {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// Skipped returns the number of already-current artifacts.
func (r *Result) Skipped() int { return r.count(OutcomeSkipped) }

// Reused returns the number of artifacts restored from the mirror.
func (r *Result) Reused() int { return r.count(OutcomeReused) }

// Fetched returns the number of artifacts fetched from the origin.
func (r *Result) Fetched() int { return r.count(OutcomeFetched) }

// Uploaded returns the number of upload-only artifacts.
func (r *Result) Uploaded() int { return r.count(OutcomeUploaded) }

// Failed returns the names of artifacts whose workflow ended in error.
func (r *Result) Failed() []string {
	var names []string
	for _, a := range r.Artifacts {
		if a.Outcome == OutcomeFailed {
			names = append(names, a.Name)
		}
	}
	return names
}

// HasFailures reports whether any artifact failed.
func (r *Result) HasFailures() bool {
	return r.count(OutcomeFailed) > 0
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	summary := fmt.Sprintf("%d skipped, %d reused, %d fetched",
		r.Skipped(), r.Reused(), r.Fetched())
	if n := r.Uploaded(); n > 0 {
		summary += fmt.Sprintf(", %d uploaded", n)
	}
	if failed := r.Failed(); len(failed) > 0 {
		summary += fmt.Sprintf(", %d failed (%s)", len(failed), strings.Join(failed, ", "))
	}
	if r.DryRun {
		summary += " (dry run)"
	}
	return summary
}
