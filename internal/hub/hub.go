// Package hub is the mirror-store collaborator: a client for the
// Hugging Face Hub dataset API. It reads per-revision file metadata,
// downloads and uploads files, creates branches idempotently, and
// deletes files. All methods are plumbing; the decisions about when to
// call them live in the orchestrator.
package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/sayshara/oldump/internal/freshness"
	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
)

// DefaultEndpoint is the public Hub endpoint.
const DefaultEndpoint = "https://huggingface.co"

// Client talks to one dataset repo on the Hub.
type Client struct {
	http     *http.Client
	fs       afero.Fs
	endpoint string
	repoID   string
	token    string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the Hub endpoint (tests point this at a local server).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a Hub client for the given dataset repo. The token may be
// empty for public reads; writes require it.
func New(fs afero.Fs, repoID, token string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: constants.UploadTimeout},
		fs:       fs,
		endpoint: DefaultEndpoint,
		repoID:   repoID,
		token:    token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RepoID returns the dataset repo this client is bound to.
func (c *Client) RepoID() string {
	return c.repoID
}

// apply sets auth and common headers on a request.
func (c *Client) apply(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// WhoAmI validates the token and returns the account name. Called once
// at run start; a bad token fails the run before any transfer begins.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HubAPITimeout)
	defer cancel()

	var ident whoAmI
	if err := c.getJSON(ctx, c.endpoint+"/api/whoami-v2", &ident); err != nil {
		return "", err
	}
	return ident.Name, nil
}

// RevisionFile reports the mirror state of one file on one revision:
// present with an LFS modification marker, present without one, or
// absent. A missing repo or revision is absent, not an error.
func (c *Client) RevisionFile(ctx context.Context, name, revision string) (freshness.MirrorInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HubAPITimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/datasets/%s/revision/%s",
		c.endpoint, c.repoID, url.PathEscape(revision))

	var info datasetInfo
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		if errors.IsNotFound(err) {
			return freshness.MirrorMissing(), nil
		}
		return freshness.MirrorMissing(), err
	}

	for _, s := range info.Siblings {
		if s.Rfilename != name {
			continue
		}
		if s.LFS == nil || s.LFS.LastModified == "" {
			logging.Ctx(ctx).Debug().
				Str("file", name).
				Str("revision", revision).
				Msg("Mirror file has no LFS metadata")
			return freshness.MirrorWithoutMarker(), nil
		}
		return freshness.MirrorAt(s.LFS.LastModified), nil
	}

	return freshness.MirrorMissing(), nil
}

// Download streams one file from a revision to dest, write-then-rename.
func (c *Client) Download(ctx context.Context, name, revision, dest string) error {
	endpoint := fmt.Sprintf("%s/datasets/%s/resolve/%s/%s",
		c.endpoint, c.repoID, url.PathEscape(revision), name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.WrapIO("create", "GET "+endpoint, err)
	}
	c.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, "GET "+endpoint)
	}

	tmp := dest + ".download"
	f, err := c.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", tmp, err)
	}

	_, err = io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = c.fs.Remove(tmp)
		return errors.WrapIO("write", tmp, err)
	}

	if err := c.fs.Rename(tmp, dest); err != nil {
		_ = c.fs.Remove(tmp)
		return errors.WrapIO("rename", dest, err)
	}

	return nil
}

// Upload commits one local file to repoPath on revision. The commit
// body is NDJSON: a header line with the commit message, then the file
// content streamed as base64 so the payload is never buffered whole.
func (c *Client) Upload(ctx context.Context, localPath, repoPath, revision, message string) error {
	endpoint := fmt.Sprintf("%s/api/datasets/%s/commit/%s",
		c.endpoint, c.repoID, url.PathEscape(revision))

	pr, pw := io.Pipe()
	go c.writeCommitBody(pw, localPath, repoPath, message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return errors.WrapIO("create", "POST "+endpoint, err)
	}
	c.apply(req)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, string(body))
	}

	return nil
}

// writeCommitBody streams the NDJSON commit operations into pw.
func (c *Client) writeCommitBody(pw *io.PipeWriter, localPath, repoPath, message string) {
	err := func() error {
		header, err := json.Marshal(commitHeader{Summary: message})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(pw, `{"key":"header","value":%s}`+"\n", header); err != nil {
			return err
		}

		path, err := json.Marshal(repoPath)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(pw, `{"key":"file","value":{"path":%s,"encoding":"base64","content":"`, path); err != nil {
			return err
		}

		f, err := c.fs.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		// Base64 output is JSON-string safe, so it streams straight into
		// the content field.
		enc := base64.NewEncoder(base64.StdEncoding, pw)
		if _, err := io.Copy(enc, f); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}

		_, err = io.WriteString(pw, `"}}`+"\n")
		return err
	}()

	pw.CloseWithError(err)
}

// EnsureBranch creates branch from the default branch if it does not
// already exist. Creating an existing branch is a no-op, not an error.
func (c *Client) EnsureBranch(ctx context.Context, branch string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HubAPITimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/datasets/%s/refs", c.endpoint, c.repoID)

	var r refs
	if err := c.getJSON(ctx, endpoint, &r); err != nil {
		return err
	}
	for _, b := range r.Branches {
		if b.Name == branch {
			return nil
		}
	}

	logging.Ctx(ctx).Info().Str("branch", branch).Msg("Creating branch")

	create := fmt.Sprintf("%s/api/datasets/%s/branch/%s",
		c.endpoint, c.repoID, url.PathEscape(branch))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, create, nil)
	if err != nil {
		return errors.WrapIO("create", "POST "+create, err)
	}
	c.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: create, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	// A concurrent creator winning the race is still success.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, "POST "+create)
	}

	return nil
}

// DeleteFile commits a deletion of repoPath on revision. A missing file
// surfaces as ErrNotFound so callers can stop scanning.
func (c *Client) DeleteFile(ctx context.Context, repoPath, revision, message string) error {
	endpoint := fmt.Sprintf("%s/api/datasets/%s/commit/%s",
		c.endpoint, c.repoID, url.PathEscape(revision))

	header, err := json.Marshal(commitHeader{Summary: message})
	if err != nil {
		return errors.WrapParse("json", "commit header", err)
	}
	del, err := json.Marshal(deletedFile{Path: repoPath})
	if err != nil {
		return errors.WrapParse("json", "commit operation", err)
	}
	body := fmt.Sprintf(`{"key":"header","value":%s}`+"\n"+`{"key":"deletedFile","value":%s}`+"\n", header, del)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return errors.WrapIO("create", "POST "+endpoint, err)
	}
	c.apply(req)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, "POST "+endpoint)
	}

	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.WrapIO("create", "GET "+endpoint, err)
	}
	c.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", endpoint, err)
	}

	return nil
}
