// Package chunker uploads local payloads to the mirror store, splitting
// anything over the store's single-file size limit into bounded,
// index-suffixed parts. Parts are produced and uploaded strictly in
// increasing index order, and at most one part is ever resident on
// local disk.
package chunker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
)

// UploadFunc uploads one local file to the given repo-relative path.
type UploadFunc func(ctx context.Context, localPath, repoPath string) error

// Planner splits oversized payloads into sequential parts for upload.
type Planner struct {
	fs        afero.Fs
	chunkSize int64
}

// Option configures a Planner.
type Option func(*Planner)

// WithChunkSize overrides the maximum single-upload size.
func WithChunkSize(n int64) Option {
	return func(p *Planner) {
		p.chunkSize = n
	}
}

// New creates a Planner with the store's 5 GiB single-file limit.
func New(fs afero.Fs, opts ...Option) *Planner {
	p := &Planner{
		fs:        fs,
		chunkSize: constants.ChunkSizeBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PartCount returns ceil(size/chunkSize), the number of parts an upload
// of the given size produces.
func PartCount(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// PartName returns the repo path of part index for a payload stored at
// repoPath. Indexes are 0-based in read order. The repo path is
// preserved as-is so sub-directories survive.
func PartName(repoPath string, index int) string {
	return fmt.Sprintf("%s.part%d", repoPath, index)
}

// Upload sends the payload at localPath to repoPath. A payload within
// the size limit is uploaded as-is under its canonical path. An
// oversized payload is read in consecutive maximum-size windows; each
// window is written to a temporary part file next to the payload,
// uploaded under its index-suffixed repo name, and deleted before the
// next window is produced. Upload success or failure, never more than
// one part file exists at a time.
func (p *Planner) Upload(ctx context.Context, localPath, repoPath string, upload UploadFunc) error {
	info, err := p.fs.Stat(localPath)
	if err != nil {
		return errors.WrapIO("stat", localPath, err)
	}
	size := info.Size()

	if size <= p.chunkSize {
		logging.Ctx(ctx).Info().
			Str("path", localPath).
			Int64("bytes", size).
			Msg("Uploading payload")
		return upload(ctx, localPath, repoPath)
	}

	logging.Ctx(ctx).Info().
		Str("path", localPath).
		Int64("bytes", size).
		Int("parts", PartCount(size, p.chunkSize)).
		Msg("Payload exceeds single-file limit, uploading in parts")

	src, err := p.fs.Open(localPath)
	if err != nil {
		return errors.WrapIO("open", localPath, err)
	}
	defer src.Close()

	for index := 0; ; index++ {
		written, err := p.writePart(localPath, index, src)
		if err != nil {
			return err
		}
		if written == 0 {
			break
		}

		localPart := fmt.Sprintf("%s.part%d", localPath, index)
		repoPart := PartName(repoPath, index)

		logging.Ctx(ctx).Info().
			Str("part", repoPart).
			Int64("bytes", written).
			Msg("Uploading part")

		uploadErr := upload(ctx, localPart, repoPart)
		if removeErr := p.fs.Remove(localPart); removeErr != nil && uploadErr == nil {
			return errors.WrapIO("remove", localPart, removeErr)
		}
		if uploadErr != nil {
			return uploadErr
		}

		if written < p.chunkSize {
			break
		}
	}

	return nil
}

// writePart copies the next window from src into the index'th part file
// and returns the number of bytes written. A zero count means src is
// exhausted and no part file was created.
func (p *Planner) writePart(localPath string, index int, src io.Reader) (int64, error) {
	localPart := fmt.Sprintf("%s.part%d", localPath, index)

	dst, err := p.fs.OpenFile(localPart, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return 0, errors.WrapIO("create", localPart, err)
	}

	written, err := io.CopyN(dst, src, p.chunkSize)
	closeErr := dst.Close()

	if err != nil && err != io.EOF {
		_ = p.fs.Remove(localPart)
		return 0, errors.WrapIO("write", localPart, err)
	}
	if closeErr != nil {
		_ = p.fs.Remove(localPart)
		return 0, errors.WrapIO("close", localPart, closeErr)
	}
	if written == 0 {
		_ = p.fs.Remove(localPart)
		return 0, nil
	}

	return written, nil
}
