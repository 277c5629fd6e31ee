package oldump

import (
	"context"

	"github.com/sayshara/oldump/internal/chunker"
	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
)

// Prune deletes the uploaded part files of a chunked payload from the
// mirror, scanning indexes in order and stopping at the first missing
// part. Returns the number of parts deleted. Used after a payload
// shrinks below the chunk limit, or after parts are superseded.
func (s *Syncer) Prune(ctx context.Context, repoPath, revision string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	deleted := 0
	for index := 0; index < constants.MaxPruneChunks; index++ {
		part := chunker.PartName(repoPath, index)

		err := s.retry.Do(ctx, "delete "+part, func(ctx context.Context) error {
			return s.mirror.DeleteFile(ctx, part, revision, "Delete "+part)
		})
		if err != nil {
			if errors.IsNotFound(err) {
				break
			}
			return deleted, err
		}

		logging.Ctx(ctx).Info().Str("part", part).Msg("Deleted uploaded part")
		deleted++
	}

	return deleted, nil
}
