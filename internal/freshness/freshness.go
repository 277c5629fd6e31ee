// Package freshness decides, per artifact and per run, whether the
// local copy is current, the mirror's copy can be reused, or the
// payload must be fetched from the origin. Modification markers are
// opaque: equality means identical content, any difference means
// changed. No ordering is assumed.
package freshness

import (
	"context"

	"github.com/sayshara/oldump/pkg/logging"
)

// Decision is the action chosen for one artifact. It is computed fresh
// every run and never stored.
type Decision int

const (
	// FetchOrigin means the payload must be downloaded from the origin
	// and uploaded to the mirror.
	FetchOrigin Decision = iota

	// Skip means the local copy is already current; no transfer at all.
	Skip

	// ReuseMirror means the mirror already holds the current content and
	// the local copy can be restored from it without touching the origin.
	ReuseMirror
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case ReuseMirror:
		return "reuse-mirror"
	case FetchOrigin:
		return "fetch-origin"
	default:
		return "unknown"
	}
}

// MirrorState classifies what the mirror store reports for a file.
type MirrorState int

const (
	// MirrorAbsent means the mirror has no copy, or the lookup failed
	// irrecoverably (treated the same, never as a crash).
	MirrorAbsent MirrorState = iota

	// MirrorNoMarker means the mirror holds the file but cannot report a
	// modification marker for it.
	MirrorNoMarker

	// MirrorPresent means the mirror holds the file and reports a marker.
	MirrorPresent
)

// MirrorInfo is the mirror store's answer for one file: a tagged
// variant rather than an overloaded marker string, so a real marker can
// never collide with a sentinel.
type MirrorInfo struct {
	State  MirrorState
	Marker string
}

// MirrorAt reports a mirror copy carrying the given marker.
func MirrorAt(marker string) MirrorInfo {
	return MirrorInfo{State: MirrorPresent, Marker: marker}
}

// MirrorWithoutMarker reports a mirror copy with no marker available.
func MirrorWithoutMarker() MirrorInfo {
	return MirrorInfo{State: MirrorNoMarker}
}

// MirrorMissing reports that the mirror has no usable copy.
func MirrorMissing() MirrorInfo {
	return MirrorInfo{State: MirrorAbsent}
}

// MirrorLookup is a deferred mirror-metadata query. It is a network
// call, so Resolve invokes it only when the local-current check has
// already failed.
type MirrorLookup func(ctx context.Context) MirrorInfo

// Input carries everything Resolve needs for one artifact.
type Input struct {
	// OriginMarker is the origin's current modification marker.
	OriginMarker string

	// ManifestMarker is the marker recorded at the last successful sync,
	// empty when the artifact has never been synced.
	ManifestMarker string

	// LocalPresent reports whether a local copy of the artifact exists.
	LocalPresent bool

	// Mirror is the deferred mirror-metadata lookup. A nil lookup is
	// treated as a missing mirror.
	Mirror MirrorLookup
}

// Resolve applies the decision table, in precedence order:
//
//  1. Local copy present and manifest marker equals the origin marker:
//     Skip, without querying the mirror at all.
//  2. Otherwise ask the mirror:
//     a. mirror marker equals origin marker: ReuseMirror.
//     b. mirror has no marker but the manifest marker equals the origin
//     marker: ReuseMirror on the manifest's word alone. This is a
//     weaker trust path and is logged as such.
//     c. anything else: FetchOrigin.
func Resolve(ctx context.Context, in Input) Decision {
	if in.LocalPresent && in.ManifestMarker == in.OriginMarker {
		return Skip
	}

	mirror := MirrorMissing()
	if in.Mirror != nil {
		mirror = in.Mirror(ctx)
	}

	switch mirror.State {
	case MirrorPresent:
		if mirror.Marker == in.OriginMarker {
			return ReuseMirror
		}
	case MirrorNoMarker:
		if in.ManifestMarker == in.OriginMarker {
			logging.Ctx(ctx).Warn().
				Str("origin_marker", in.OriginMarker).
				Msg("Mirror reports no marker, trusting manifest record of freshness")
			return ReuseMirror
		}
	}

	return FetchOrigin
}
