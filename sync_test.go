package oldump

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayshara/oldump/internal/freshness"
	"github.com/sayshara/oldump/internal/manifest"
	"github.com/sayshara/oldump/internal/retry"
	"github.com/sayshara/oldump/pkg/artifacts"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/sync"
)

// fakeOrigin serves markers and payloads from memory.
type fakeOrigin struct {
	fs       afero.Fs
	markers  map[string]string
	payloads map[string][]byte
	headErr  map[string]error

	headCalls     int
	downloadCalls int
}

func (o *fakeOrigin) LastModified(_ context.Context, url string) (string, error) {
	o.headCalls++
	if err := o.headErr[url]; err != nil {
		return "", err
	}
	return o.markers[url], nil
}

func (o *fakeOrigin) Download(_ context.Context, url, dest string) error {
	o.downloadCalls++
	data, ok := o.payloads[url]
	if !ok {
		return errors.NewAPIError("origin", http.StatusNotFound, url)
	}
	return afero.WriteFile(o.fs, dest, data, 0644)
}

// fakeMirror is an in-memory dataset store keyed by revision and path.
type fakeMirror struct {
	fs      afero.Fs
	files   map[string]map[string][]byte
	markers map[string]map[string]string

	branches    []string
	uploads     []string
	whoErr      error
	whoCalls    int
	downloadErr error
}

func newFakeMirror(fs afero.Fs) *fakeMirror {
	return &fakeMirror{
		fs:      fs,
		files:   make(map[string]map[string][]byte),
		markers: make(map[string]map[string]string),
	}
}

func (m *fakeMirror) put(revision, repoPath string, data []byte, marker string) {
	if m.files[revision] == nil {
		m.files[revision] = make(map[string][]byte)
		m.markers[revision] = make(map[string]string)
	}
	m.files[revision][repoPath] = data
	m.markers[revision][repoPath] = marker
}

func (m *fakeMirror) WhoAmI(context.Context) (string, error) {
	m.whoCalls++
	if m.whoErr != nil {
		return "", m.whoErr
	}
	return "sayshara", nil
}

func (m *fakeMirror) RevisionFile(_ context.Context, name, revision string) (freshness.MirrorInfo, error) {
	if _, ok := m.files[revision][name]; !ok {
		return freshness.MirrorMissing(), nil
	}
	if marker := m.markers[revision][name]; marker != "" {
		return freshness.MirrorAt(marker), nil
	}
	return freshness.MirrorWithoutMarker(), nil
}

func (m *fakeMirror) Download(_ context.Context, name, revision, dest string) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	data, ok := m.files[revision][name]
	if !ok {
		return errors.NewAPIError("hub", http.StatusNotFound, name)
	}
	return afero.WriteFile(m.fs, dest, data, 0644)
}

func (m *fakeMirror) Upload(_ context.Context, localPath, repoPath, revision, _ string) error {
	data, err := afero.ReadFile(m.fs, localPath)
	if err != nil {
		return err
	}
	m.put(revision, repoPath, data, "")
	m.uploads = append(m.uploads, revision+":"+repoPath)
	return nil
}

func (m *fakeMirror) EnsureBranch(_ context.Context, branch string) error {
	m.branches = append(m.branches, branch)
	return nil
}

func (m *fakeMirror) DeleteFile(_ context.Context, repoPath, revision, _ string) error {
	if _, ok := m.files[revision][repoPath]; !ok {
		return errors.NewAPIError("hub", http.StatusNotFound, repoPath)
	}
	delete(m.files[revision], repoPath)
	return nil
}

func testArtifacts() []artifacts.Artifact {
	return []artifacts.Artifact{
		{
			Name:      "raw.gz",
			OriginURL: "https://origin.example/raw.gz",
			RepoPath:  "raw.gz",
			Revision:  "backup/raw",
			Class:     artifacts.ClassRaw,
		},
		{
			Name:      "derived.bin",
			OriginURL: "https://origin.example/derived.bin",
			RepoPath:  "data/derived.bin",
			Revision:  "main",
			Class:     artifacts.ClassDerived,
		},
	}
}

func newTestSyncer(t *testing.T, fs afero.Fs, fo *fakeOrigin, fm *fakeMirror, opts ...Option) *Syncer {
	t.Helper()
	base := []Option{
		WithFs(fs),
		WithOrigin(fo),
		WithMirror(fm),
		WithArtifacts(testArtifacts()),
		WithWorkDir("work"),
		WithRetryPolicy(retry.New(retry.WithBase(time.Millisecond))),
	}
	s, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func freshFixture(t *testing.T) (afero.Fs, *fakeOrigin, *fakeMirror) {
	t.Helper()
	fs := afero.NewMemMapFs()
	fo := &fakeOrigin{
		fs: fs,
		markers: map[string]string{
			"https://origin.example/raw.gz":      "Mon, 01 Jan 2024 00:00:00 GMT",
			"https://origin.example/derived.bin": "Tue, 02 Jan 2024 00:00:00 GMT",
		},
		payloads: map[string][]byte{
			"https://origin.example/raw.gz":      []byte("raw dump bytes"),
			"https://origin.example/derived.bin": []byte("derived bytes"),
		},
		headErr: make(map[string]error),
	}
	return fs, fo, newFakeMirror(fs)
}

func TestSyncFreshRunFetchesEverything(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	result, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, 2, result.Fetched())
	assert.False(t, result.HasFailures())

	// Payloads landed on each artifact's revision.
	assert.Equal(t, []byte("raw dump bytes"), fm.files["backup/raw"]["raw.gz"])
	assert.Equal(t, []byte("derived bytes"), fm.files["main"]["data/derived.bin"])

	// The backup branch was ensured; main never needs ensuring.
	assert.Equal(t, []string{"backup/raw"}, fm.branches)

	// Raw artifacts keep their local copy, derived ones are cleaned up.
	rawKept, _ := afero.Exists(fs, "work/raw.gz")
	derivedKept, _ := afero.Exists(fs, "work/derived.bin")
	assert.True(t, rawKept)
	assert.False(t, derivedKept)

	// The manifest recorded both markers and was mirrored.
	man, err := manifest.Open(fs, s.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", man.Marker("raw.gz"))
	assert.Equal(t, "Tue, 02 Jan 2024 00:00:00 GMT", man.Marker("derived.bin"))
	assert.Contains(t, fm.files["main"], "metadata/ol_sync_manifest.json")
}

func TestSyncSecondRunSkips(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	downloadsAfterFirst := fo.downloadCalls

	// The derived artifact's local copy was cleaned up; restore it so
	// both artifacts pass the local-current check.
	require.NoError(t, afero.WriteFile(fs, "work/derived.bin", []byte("derived bytes"), 0644))

	result, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped())
	assert.Equal(t, 0, result.Fetched())
	assert.Equal(t, downloadsAfterFirst, fo.downloadCalls, "unchanged artifacts must not be re-downloaded")
}

func TestSyncReusesMirrorCopy(t *testing.T) {
	fs, fo, fm := freshFixture(t)

	// The mirror already holds the current raw dump but the manifest has
	// only an older marker and no local copy exists.
	fm.put("backup/raw", "raw.gz", []byte("raw dump bytes"), "Mon, 01 Jan 2024 00:00:00 GMT")

	s := newTestSyncer(t, fs, fo, fm)
	result, err := s.Sync(context.Background(), sync.WithOnly("raw.gz"))
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, sync.OutcomeReused, result.Artifacts[0].Outcome)
	assert.Equal(t, 0, fo.downloadCalls, "reuse must not touch the origin payload")

	// The mirror's copy was restored locally and the manifest caught up.
	local, err := afero.ReadFile(fs, "work/raw.gz")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw dump bytes"), local)

	man, err := manifest.Open(fs, s.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", man.Marker("raw.gz"))
}

func TestSyncReuseFailureFallsBackToFetch(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	fm.put("backup/raw", "raw.gz", []byte("raw dump bytes"), "Mon, 01 Jan 2024 00:00:00 GMT")
	fm.downloadErr = errors.NewAPIError("hub", http.StatusServiceUnavailable, "down")

	s := newTestSyncer(t, fs, fo, fm)
	result, err := s.Sync(context.Background(), sync.WithOnly("raw.gz"))
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, sync.OutcomeFetched, result.Artifacts[0].Outcome)
	assert.Equal(t, 1, fo.downloadCalls)
}

func TestSyncOriginUnreachableFailsArtifactNotRun(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	fo.headErr["https://origin.example/raw.gz"] =
		errors.NewAPIError("origin", http.StatusServiceUnavailable, "down")

	s := newTestSyncer(t, fs, fo, fm)
	result, err := s.Sync(context.Background())
	require.NoError(t, err, "a per-artifact failure must not fail the run")

	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, []string{"raw.gz"}, result.Failed())
	assert.Equal(t, 1, result.Fetched(), "remaining artifacts still run")

	var res sync.ArtifactResult
	for _, r := range result.Artifacts {
		if r.Name == "raw.gz" {
			res = r
		}
	}
	assert.True(t, errors.Is(res.Err, errors.ErrOriginUnreachable))
}

func TestSyncDryRunTouchesNothing(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	result, err := s.Sync(context.Background(), sync.WithDryRun(true))
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.Len(t, result.Artifacts, 2)

	assert.Equal(t, 0, fm.whoCalls, "dry run must not authenticate")
	assert.Equal(t, 0, fo.headCalls, "dry run must not contact the origin")
	assert.Equal(t, 0, fo.downloadCalls)
	assert.Empty(t, fm.uploads)

	exists, _ := afero.Exists(fs, s.ManifestPath())
	assert.False(t, exists, "dry run must not write the manifest")
}

func TestSyncChunksOversizedPayload(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	fo.payloads["https://origin.example/raw.gz"] = []byte("0123456789AB") // 12 bytes

	s := newTestSyncer(t, fs, fo, fm, WithChunkSize(5))
	result, err := s.Sync(context.Background(), sync.WithOnly("raw.gz"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched())

	assert.Contains(t, fm.files["backup/raw"], "raw.gz.part0")
	assert.Contains(t, fm.files["backup/raw"], "raw.gz.part1")
	assert.Contains(t, fm.files["backup/raw"], "raw.gz.part2")
	assert.NotContains(t, fm.files["backup/raw"], "raw.gz")
}

func TestSyncUploadOnly(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	require.NoError(t, afero.WriteFile(fs, "work/extra.bin", []byte("local only"), 0644))

	s := newTestSyncer(t, fs, fo, fm)
	result, err := s.Sync(context.Background(), sync.WithUploadOnly("extra.bin"))
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, sync.OutcomeUploaded, result.Artifacts[0].Outcome)
	assert.Equal(t, 0, fo.headCalls, "upload-only must not check the origin")

	// Untracked files go to the default branch under their own name.
	assert.Equal(t, []byte("local only"), fm.files["main"]["extra.bin"])

	man, err := manifest.Open(fs, s.ManifestPath())
	require.NoError(t, err)
	_, recorded := man.Get("extra.bin")
	assert.True(t, recorded)
}

func TestSyncUploadOnlyMissingLocalFile(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	result, err := s.Sync(context.Background(), sync.WithUploadOnly("absent.bin"))
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, sync.OutcomeFailed, result.Artifacts[0].Outcome)
	assert.True(t, errors.IsNotFound(result.Artifacts[0].Err))
}

func TestSyncKeepLocalOverridesCleanup(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	_, err := s.Sync(context.Background(), sync.WithKeepLocal(true), sync.WithOnly("derived.bin"))
	require.NoError(t, err)

	kept, _ := afero.Exists(fs, "work/derived.bin")
	assert.True(t, kept)
}

func TestSyncCorruptManifestRefusesRun(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	require.NoError(t, fs.MkdirAll("work", 0755))
	require.NoError(t, afero.WriteFile(fs, "work/ol_sync_manifest.json", []byte("{broken"), 0644))

	s := newTestSyncer(t, fs, fo, fm)
	result, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsManifestCorrupt(err))
	assert.Nil(t, result)
	assert.Equal(t, 0, fo.headCalls, "a corrupt manifest must stop the run before any transfer")
}

func TestSyncBadCredentialsRefuseRun(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	fm.whoErr = errors.NewAPIError("hub", http.StatusUnauthorized, "bad token")

	s := newTestSyncer(t, fs, fo, fm)
	_, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, fo.downloadCalls)
}

func TestSyncUnknownOnlyIsRejected(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	_, err := s.Sync(context.Background(), sync.WithOnly("nope.gz"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestNewRequiresMirror(t *testing.T) {
	_, err := New(WithFs(afero.NewMemMapFs()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestPrune(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	fm.put("main", "big.bin.part0", []byte("a"), "")
	fm.put("main", "big.bin.part1", []byte("b"), "")

	s := newTestSyncer(t, fs, fo, fm)
	deleted, err := s.Prune(context.Background(), "big.bin", "main")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NotContains(t, fm.files["main"], "big.bin.part0")
	assert.NotContains(t, fm.files["main"], "big.bin.part1")
}

func TestPruneNothingToDelete(t *testing.T) {
	fs, fo, fm := freshFixture(t)
	s := newTestSyncer(t, fs, fo, fm)

	deleted, err := s.Prune(context.Background(), "big.bin", "main")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
