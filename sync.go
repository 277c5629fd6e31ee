package oldump

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sayshara/oldump/internal/freshness"
	"github.com/sayshara/oldump/internal/manifest"
	"github.com/sayshara/oldump/pkg/artifacts"
	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
	"github.com/sayshara/oldump/pkg/sync"
)

// Workflow stage names, used for error context and logging.
const (
	stageChecking  = "checking"
	stageDeciding  = "deciding"
	stageActing    = "acting"
	stageRecording = "recording"
)

// syntheticMarker stands in for the origin marker during dry runs, so
// the decision logic still executes without any network contact.
const syntheticMarker = "<dry-run>"

// Sync reconciles every tracked artifact against the origin, strictly
// sequentially. Per-artifact failures are logged and the run continues;
// only a corrupt manifest, bad credentials, or the final
// manifest-upload's retry exhaustion are run-fatal. The returned Result
// is non-nil whenever the run reached the artifact loop.
func (s *Syncer) Sync(ctx context.Context, opts ...sync.Option) (*sync.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	options := sync.Defaults().Apply(opts...)
	if err := options.Validate(s.set); err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	// The manifest is the durable memory of the system. An absent file
	// is a fresh start; a corrupt one refuses the run.
	man, err := manifest.Open(s.fs, s.manifestPath, manifest.WithClock(s.clock))
	if err != nil {
		return nil, err
	}

	if !options.DryRun {
		if err := s.login(ctx); err != nil {
			return nil, err
		}
	}

	result := &sync.Result{DryRun: options.DryRun}

	if options.UploadOnly != "" {
		result.Artifacts = append(result.Artifacts, s.uploadOnly(ctx, options, man))
		return s.finish(ctx, options, man, result)
	}

	for _, a := range s.set {
		if options.Only != "" && a.Name != options.Only {
			continue
		}

		actx := logging.WithArtifact(ctx, a.Name)
		res := s.syncArtifact(actx, a, options, man)
		result.Artifacts = append(result.Artifacts, res)

		if res.Outcome == sync.OutcomeFailed {
			logging.Ctx(actx).Error().
				Err(res.Err).
				Msg("Artifact failed, continuing with next")
			continue
		}

		// Persist after every completed Recording so a terminated run
		// keeps all finished artifacts.
		if !options.DryRun {
			if err := man.Save(); err != nil {
				return result, err
			}
		}
	}

	return s.finish(ctx, options, man, result)
}

// login validates credentials once before any transfer begins.
func (s *Syncer) login(ctx context.Context) error {
	var account string
	err := s.retry.Do(ctx, "whoami", func(ctx context.Context) error {
		var err error
		account, err = s.mirror.WhoAmI(ctx)
		return err
	})
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Debug().Str("account", account).Msg("Authenticated with dataset store")
	return nil
}

// syncArtifact runs one artifact through
// Checking → Deciding → Acting → Recording.
func (s *Syncer) syncArtifact(ctx context.Context, a artifacts.Artifact, options *sync.Options, man *manifest.Store) sync.ArtifactResult {
	localPath := filepath.Join(s.workDir, a.Name)

	// Checking: obtain the origin's modification marker.
	originMarker, err := s.checkOrigin(logging.WithStage(ctx, stageChecking), a, options)
	if err != nil {
		return failed(a.Name, stageChecking, err)
	}

	manifestMarker := man.Marker(a.Name)
	localPresent, _ := afero.Exists(s.fs, localPath)

	// Deciding: pure decision over origin, manifest, and a deferred
	// mirror lookup.
	decision := freshness.Resolve(logging.WithStage(ctx, stageDeciding), freshness.Input{
		OriginMarker:   originMarker,
		ManifestMarker: manifestMarker,
		LocalPresent:   localPresent,
		Mirror:         s.mirrorLookup(a, options),
	})

	logging.Ctx(ctx).Info().
		Str("decision", decision.String()).
		Str("origin_marker", originMarker).
		Str("manifest_marker", manifestMarker).
		Bool("local_present", localPresent).
		Msg("Resolved freshness")

	outcome, err := s.act(logging.WithStage(ctx, stageActing), a, localPath, decision, options)
	if err != nil {
		return failed(a.Name, stageActing, err)
	}

	// Recording: only reached after a successful action.
	if !options.DryRun {
		man.RecordSync(a.Name, originMarker, a.Name)
	}

	return sync.ArtifactResult{Name: a.Name, Outcome: outcome}
}

// checkOrigin fetches the origin marker, or substitutes a synthetic one
// in dry-run mode. Retry exhaustion here means the origin is
// unreachable: fatal for this artifact only.
func (s *Syncer) checkOrigin(ctx context.Context, a artifacts.Artifact, options *sync.Options) (string, error) {
	if options.DryRun {
		return syntheticMarker, nil
	}

	var marker string
	err := s.retry.Do(ctx, "head "+a.OriginURL, func(ctx context.Context) error {
		var err error
		marker, err = s.origin.LastModified(ctx, a.OriginURL)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrOriginUnreachable, err)
	}
	return marker, nil
}

// mirrorLookup builds the deferred mirror-metadata query. Lookup
// failures degrade to "absent" rather than failing the artifact; in
// dry-run mode the mirror is never contacted.
func (s *Syncer) mirrorLookup(a artifacts.Artifact, options *sync.Options) freshness.MirrorLookup {
	return func(ctx context.Context) freshness.MirrorInfo {
		if options.DryRun {
			return freshness.MirrorMissing()
		}

		var info freshness.MirrorInfo
		err := s.retry.Do(ctx, "mirror metadata "+a.RepoPath, func(ctx context.Context) error {
			var err error
			info, err = s.mirror.RevisionFile(ctx, a.RepoPath, a.Revision)
			return err
		})
		if err != nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Msg("Mirror metadata unavailable, treating as absent")
			return freshness.MirrorMissing()
		}
		return info
	}
}

// act carries out the resolved decision and returns the artifact's
// outcome. The reuse attempt's result is an explicit value: a failed
// reuse always falls through to the fetch path, never to an undefined
// state.
func (s *Syncer) act(ctx context.Context, a artifacts.Artifact, localPath string, decision freshness.Decision, options *sync.Options) (sync.Outcome, error) {
	if options.DryRun {
		switch decision {
		case freshness.Skip:
			return sync.OutcomeSkipped, nil
		case freshness.ReuseMirror:
			return sync.OutcomeReused, nil
		default:
			return sync.OutcomeFetched, nil
		}
	}

	switch decision {
	case freshness.Skip:
		return sync.OutcomeSkipped, nil

	case freshness.ReuseMirror:
		reused := s.reuseFromMirror(ctx, a, localPath)
		if reused {
			return sync.OutcomeReused, nil
		}
		logging.Ctx(ctx).Warn().Msg("Mirror reuse exhausted retries, falling back to origin fetch")
		fallthrough

	default: // freshness.FetchOrigin
		if err := s.fetchAndUpload(ctx, a, localPath, options); err != nil {
			return sync.OutcomeFailed, err
		}
		return sync.OutcomeFetched, nil
	}
}

// reuseFromMirror restores the mirror's copy into the working area.
// Exhaustion is not an error here; the caller falls back to the origin.
func (s *Syncer) reuseFromMirror(ctx context.Context, a artifacts.Artifact, localPath string) bool {
	err := s.retry.Do(ctx, "mirror download "+a.RepoPath, func(ctx context.Context) error {
		return s.mirror.Download(ctx, a.RepoPath, a.Revision, localPath)
	})
	return err == nil
}

// fetchAndUpload streams the origin payload to local storage and
// uploads it, chunked if oversized. A partial download is never
// uploaded: Download only installs complete payloads.
func (s *Syncer) fetchAndUpload(ctx context.Context, a artifacts.Artifact, localPath string, options *sync.Options) error {
	err := s.retry.Do(ctx, "fetch "+a.OriginURL, func(ctx context.Context) error {
		return s.origin.Download(ctx, a.OriginURL, localPath)
	})
	if err != nil {
		return err
	}

	if err := s.upload(ctx, a, localPath); err != nil {
		return err
	}

	s.cleanupLocal(ctx, a, localPath, options)
	return nil
}

// upload sends localPath to the artifact's repo path, ensuring its
// branch exists first. Every part upload goes through the retry policy.
func (s *Syncer) upload(ctx context.Context, a artifacts.Artifact, localPath string) error {
	if a.Revision != constants.DefaultRevision {
		err := s.retry.Do(ctx, "ensure branch "+a.Revision, func(ctx context.Context) error {
			return s.mirror.EnsureBranch(ctx, a.Revision)
		})
		if err != nil {
			return err
		}
	}

	message := "Update " + a.RepoPath
	return s.planner.Upload(ctx, localPath, a.RepoPath, func(ctx context.Context, partPath, repoPath string) error {
		return s.retry.Do(ctx, "upload "+repoPath, func(ctx context.Context) error {
			return s.mirror.Upload(ctx, partPath, repoPath, a.Revision, message)
		})
	})
}

// cleanupLocal deletes the local artifact after a successful upload,
// unless the caller opted to keep it or the artifact's class is
// retention-exempt.
func (s *Syncer) cleanupLocal(ctx context.Context, a artifacts.Artifact, localPath string, options *sync.Options) {
	if options.KeepLocal || a.RetentionExempt() {
		return
	}
	if err := s.fs.Remove(localPath); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("path", localPath).Msg("Could not delete local file after upload")
		return
	}
	logging.Ctx(ctx).Debug().Str("path", localPath).Msg("Deleted local file after upload")
}

// uploadOnly uploads one already-local file without an origin check and
// records it under its previously known marker.
func (s *Syncer) uploadOnly(ctx context.Context, options *sync.Options, man *manifest.Store) sync.ArtifactResult {
	name := options.UploadOnly
	ctx = logging.WithArtifact(ctx, name)

	a, found := artifacts.Find(s.set, name)
	if !found {
		// Any local file may be pushed, not just tracked dumps; untracked
		// files go to the default branch.
		a = artifacts.Artifact{
			Name:     name,
			RepoPath: name,
			Revision: constants.DefaultRevision,
			Class:    artifacts.ClassDerived,
		}
	}

	localPath := filepath.Join(s.workDir, a.Name)
	if present, _ := afero.Exists(s.fs, localPath); !present {
		return failed(name, stageActing, errors.WrapIO("stat", localPath, errors.ErrNotFound))
	}

	if options.DryRun {
		return sync.ArtifactResult{Name: name, Outcome: sync.OutcomeUploaded}
	}

	if err := s.upload(ctx, a, localPath); err != nil {
		return failed(name, stageActing, err)
	}

	s.cleanupLocal(ctx, a, localPath, options)
	man.RecordSync(a.Name, man.Marker(a.Name), a.Name)

	return sync.ArtifactResult{Name: name, Outcome: sync.OutcomeUploaded}
}

// finish persists the manifest and mirrors it under the metadata
// prefix, as the run's own final artifact. Failure here is run-fatal.
func (s *Syncer) finish(ctx context.Context, options *sync.Options, man *manifest.Store, result *sync.Result) (*sync.Result, error) {
	logging.Ctx(ctx).Info().Str("summary", result.Summary()).Msg("Run complete")

	if options.DryRun {
		return result, nil
	}

	if err := man.Save(); err != nil {
		return result, err
	}

	repoPath := constants.ManifestRepoPrefix + "/" + filepath.Base(s.manifestPath)
	err := s.retry.Do(ctx, "upload manifest", func(ctx context.Context) error {
		return s.mirror.Upload(ctx, s.manifestPath, repoPath, constants.DefaultRevision, "Update sync manifest")
	})
	if err != nil {
		return result, errors.WrapSync("manifest", stageRecording, err)
	}

	return result, nil
}

// failed builds a Failed result with stage and cause context.
func failed(name, stage string, err error) sync.ArtifactResult {
	return sync.ArtifactResult{
		Name:    name,
		Outcome: sync.OutcomeFailed,
		Err:     errors.WrapSync(name, stage, err),
	}
}
