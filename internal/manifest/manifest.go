// Package manifest persists the per-artifact sync state that survives
// between runs. The document is a single JSON file keyed by artifact
// name, saved atomically so readers never observe a half-written
// manifest.
package manifest

import (
	"encoding/json"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
)

// ChunkEntry records the state of one converted sub-artifact.
type ChunkEntry struct {
	LastSynced string `json:"last_synced"`
	Converted  bool   `json:"converted"`
}

// Entry is the durable record for a single artifact.
type Entry struct {
	LastSynced         string                `json:"last_synced"`
	SourceLastModified string                `json:"source_last_modified"`
	ConvertedChunks    map[string]ChunkEntry `json:"converted_chunks,omitempty"`
}

// Store owns the manifest document. Entries are mutated only through
// RecordSync; the document on disk always reflects the last Save.
type Store struct {
	fs      afero.Fs
	path    string
	clock   clockwork.Clock
	entries map[string]*Entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for last_synced timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open loads the manifest at path. An absent file yields an empty
// manifest and never fails the run. An unparseable file is reported as
// ErrManifestCorrupt: starting over from an empty document would mask
// drift and re-download every artifact.
func Open(fs afero.Fs, path string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:      fs,
		path:    path,
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.WrapIO("read", path, err)
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, &errors.ManifestError{Path: path, Err: err}
	}
	if s.entries == nil {
		s.entries = make(map[string]*Entry)
	}

	return s, nil
}

// Path returns the manifest's location on disk.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of tracked artifacts.
func (s *Store) Len() int {
	return len(s.entries)
}

// Names returns the tracked artifact names in no particular order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Get returns a copy of the entry for name, if one exists.
func (s *Store) Get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	if !ok {
		return Entry{}, false
	}
	out := *e
	if e.ConvertedChunks != nil {
		out.ConvertedChunks = make(map[string]ChunkEntry, len(e.ConvertedChunks))
		for k, v := range e.ConvertedChunks {
			out.ConvertedChunks[k] = v
		}
	}
	return out, true
}

// Marker returns the recorded source modification marker for name, or
// the empty string when the artifact has never been synced.
func (s *Store) Marker(name string) string {
	if e, ok := s.entries[name]; ok {
		return e.SourceLastModified
	}
	return ""
}

// RecordSync creates or updates the entry for name after a successful
// reconciliation, stamping last_synced with the current wall-clock time
// and upserting one converted_chunks sub-entry. Calling it twice with
// the same arguments converges to the same observable state. Entries
// for other artifacts are never touched.
func (s *Store) RecordSync(name, originMarker, chunkName string) {
	now := s.clock.Now().UTC().Format(time.RFC3339)

	e, ok := s.entries[name]
	if !ok {
		e = &Entry{}
		s.entries[name] = e
	}
	e.LastSynced = now
	e.SourceLastModified = originMarker

	if chunkName != "" {
		if e.ConvertedChunks == nil {
			e.ConvertedChunks = make(map[string]ChunkEntry)
		}
		e.ConvertedChunks[chunkName] = ChunkEntry{
			LastSynced: now,
			Converted:  true,
		}
	}
}

// Save writes the full document atomically: marshal, write to a
// temporary sibling, rename over the target.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errors.WrapParse("json", s.path, err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		// Best effort: don't leave the temp file behind.
		_ = s.fs.Remove(tmp)
		return errors.WrapIO("rename", s.path, err)
	}

	return nil
}
