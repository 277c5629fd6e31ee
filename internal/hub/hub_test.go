package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayshara/oldump/internal/freshness"
	"github.com/sayshara/oldump/pkg/errors"
)

func newTestClient(t *testing.T, fs afero.Fs, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(fs, "sayshara/openlibrary", "hf_testtoken", WithEndpoint(srv.URL))
}

func TestWhoAmI(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/whoami-v2", r.URL.Path)
		assert.Equal(t, "Bearer hf_testtoken", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"name":"sayshara"}`)
	}))

	name, err := c.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sayshara", name)
}

func TestWhoAmIUnauthorized(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.WhoAmI(context.Background())
	require.Error(t, err)
	var apiErr *errors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func revisionHandler(t *testing.T, body string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/datasets/sayshara/openlibrary/revision/main", r.URL.Path)
		_, _ = io.WriteString(w, body)
	})
}

func TestRevisionFileWithMarker(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), revisionHandler(t, `{
		"siblings": [
			{"rfilename": "other.txt"},
			{"rfilename": "dump.txt.gz", "lfs": {"oid": "abc", "size": 10, "lastModified": "2024-01-01T00:00:00Z"}}
		]
	}`))

	info, err := c.RevisionFile(context.Background(), "dump.txt.gz", "main")
	require.NoError(t, err)
	assert.Equal(t, freshness.MirrorPresent, info.State)
	assert.Equal(t, "2024-01-01T00:00:00Z", info.Marker)
}

func TestRevisionFileWithoutMarker(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), revisionHandler(t, `{
		"siblings": [{"rfilename": "dump.txt.gz"}]
	}`))

	info, err := c.RevisionFile(context.Background(), "dump.txt.gz", "main")
	require.NoError(t, err)
	assert.Equal(t, freshness.MirrorNoMarker, info.State)
}

func TestRevisionFileAbsent(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), revisionHandler(t, `{"siblings": []}`))

	info, err := c.RevisionFile(context.Background(), "dump.txt.gz", "main")
	require.NoError(t, err)
	assert.Equal(t, freshness.MirrorAbsent, info.State)
}

func TestRevisionFileMissingRevision(t *testing.T) {
	// A repo or revision that does not exist is a normal absent answer.
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	info, err := c.RevisionFile(context.Background(), "dump.txt.gz", "main")
	require.NoError(t, err)
	assert.Equal(t, freshness.MirrorAbsent, info.State)
}

func TestRevisionFileServerError(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.RevisionFile(context.Background(), "dump.txt.gz", "main")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestDownload(t *testing.T) {
	payload := []byte("mirrored bytes")
	fs := afero.NewMemMapFs()
	c := newTestClient(t, fs, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/sayshara/openlibrary/resolve/main/dump.txt.gz", r.URL.Path)
		_, _ = w.Write(payload)
	}))

	require.NoError(t, c.Download(context.Background(), "dump.txt.gz", "main", "work/dump.txt.gz"))

	got, err := afero.ReadFile(fs, "work/dump.txt.gz")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// commitOp is one decoded NDJSON line of a commit request.
type commitOp struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func decodeCommit(t *testing.T, r io.Reader) []commitOp {
	t.Helper()
	var ops []commitOp
	dec := json.NewDecoder(r)
	for dec.More() {
		var op commitOp
		require.NoError(t, dec.Decode(&op))
		ops = append(ops, op)
	}
	return ops
}

func TestUpload(t *testing.T) {
	payload := []byte("payload to commit")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "work/dump.txt.gz", payload, 0644))

	var ops []commitOp
	c := newTestClient(t, fs, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/datasets/sayshara/openlibrary/commit/backup%2Fraw", r.URL.EscapedPath())
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		ops = decodeCommit(t, r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	err := c.Upload(context.Background(), "work/dump.txt.gz", "dump.txt.gz", "backup/raw", "Update dump.txt.gz")
	require.NoError(t, err)

	require.Len(t, ops, 2)
	assert.Equal(t, "header", ops[0].Key)

	var header struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(ops[0].Value, &header))
	assert.Equal(t, "Update dump.txt.gz", header.Summary)

	assert.Equal(t, "file", ops[1].Key)
	var file struct {
		Path     string `json:"path"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(ops[1].Value, &file))
	assert.Equal(t, "dump.txt.gz", file.Path)
	assert.Equal(t, "base64", file.Encoding)

	decoded, err := base64.StdEncoding.DecodeString(file.Content)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestUploadRejected(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "work/dump.txt.gz", []byte("x"), 0644))

	c := newTestClient(t, fs, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))

	err := c.Upload(context.Background(), "work/dump.txt.gz", "dump.txt.gz", "main", "Update dump.txt.gz")
	require.Error(t, err)
	var apiErr *errors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestEnsureBranchAlreadyExists(t *testing.T) {
	created := false
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/datasets/sayshara/openlibrary/refs":
			_, _ = io.WriteString(w, `{"branches": [{"name": "main"}, {"name": "backup/raw"}]}`)
		case strings.Contains(r.URL.Path, "/branch/"):
			created = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	require.NoError(t, c.EnsureBranch(context.Background(), "backup/raw"))
	assert.False(t, created, "existing branch must not be recreated")
}

func TestEnsureBranchCreates(t *testing.T) {
	created := false
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/datasets/sayshara/openlibrary/refs":
			_, _ = io.WriteString(w, `{"branches": [{"name": "main"}]}`)
		case r.Method == http.MethodPost && r.URL.EscapedPath() == "/api/datasets/sayshara/openlibrary/branch/backup%2Fraw":
			created = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	require.NoError(t, c.EnsureBranch(context.Background(), "backup/raw"))
	assert.True(t, created)
}

func TestEnsureBranchLostRaceIsFine(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/datasets/sayshara/openlibrary/refs" {
			_, _ = io.WriteString(w, `{"branches": []}`)
			return
		}
		w.WriteHeader(http.StatusConflict)
	}))

	require.NoError(t, c.EnsureBranch(context.Background(), "backup/raw"))
}

func TestDeleteFile(t *testing.T) {
	var body string
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.DeleteFile(context.Background(), "dump.txt.gz.part0", "main", "Prune dump.txt.gz.part0"))
	assert.Contains(t, body, `"deletedFile"`)
	assert.Contains(t, body, `"dump.txt.gz.part0"`)
}

func TestDeleteFileNotFound(t *testing.T) {
	c := newTestClient(t, afero.NewMemMapFs(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := c.DeleteFile(context.Background(), "dump.txt.gz.part0", "main", "Prune")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
