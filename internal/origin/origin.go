// Package origin talks to the authoritative upstream source of the dump
// files. It exposes exactly two operations: a freshness probe (HEAD
// Last-Modified) and a streaming download.
package origin

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
)

// Client fetches headers and bytes from the origin over HTTP.
// Redirects are followed; the origin serves dumps behind a redirector.
type Client struct {
	http *http.Client
	fs   afero.Fs
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates an origin client writing downloads through fs.
func New(fs afero.Fs, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: constants.DownloadTimeout},
		fs:   fs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastModified performs a HEAD request and returns the Last-Modified
// header as an opaque modification marker. An origin that omits the
// header yields an empty marker, not an error.
func (c *Client) LastModified(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", errors.WrapIO("create", "HEAD "+url, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &errors.APIError{Host: req.URL.Host, Endpoint: url, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewAPIError(req.URL.Host, resp.StatusCode, "HEAD "+url)
	}

	return resp.Header.Get("Last-Modified"), nil
}

// Download streams the payload at url to dest. The bytes land in a
// temporary sibling first and are renamed into place only on success,
// so a failed download never poses as a complete local copy.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WrapIO("create", "GET "+url, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errors.APIError{Host: req.URL.Host, Endpoint: url, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewAPIError(req.URL.Host, resp.StatusCode, "GET "+url)
	}

	tmp := dest + ".download"
	f, err := c.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", tmp, err)
	}

	buf := make([]byte, constants.CopyBufferSize)
	written, err := io.CopyBuffer(f, resp.Body, buf)
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

	logging.Ctx(ctx).Debug().
		Str("url", url).
		Str("dest", dest).
		Int64("bytes", written).
		Msg("Downloaded origin payload")

	return nil
}
