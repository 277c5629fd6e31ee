// Package artifacts defines the set of tracked dump files. The set is
// configured, not discovered: it is compiled in as defaults matching
// the Open Library bulk dumps and can be overridden from a YAML file.
package artifacts

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/errors"
)

// Class groups artifacts by how they are stored and retained.
type Class string

const (
	// ClassRaw marks raw dump files: archived on the backup branch and
	// kept locally after upload (the local copy doubles as a cache for
	// the next run's Skip check).
	ClassRaw Class = "raw"

	// ClassDerived marks derived files: stored on the default branch and
	// deleted locally after a successful upload.
	ClassDerived Class = "derived"
)

// Artifact is one tracked unit of content. Immutable for the lifetime
// of a run.
type Artifact struct {
	// Name identifies the artifact and is its local file name.
	Name string `yaml:"name"`

	// OriginURL is where the authoritative copy lives.
	OriginURL string `yaml:"origin_url"`

	// RepoPath is the repo-relative target path in the mirror. Defaults
	// to Name.
	RepoPath string `yaml:"repo_path,omitempty"`

	// Revision is the mirror branch the artifact is stored on.
	Revision string `yaml:"revision,omitempty"`

	// Class selects storage branch and retention behavior.
	Class Class `yaml:"class,omitempty"`
}

// RetentionExempt reports whether the local copy is kept after upload
// regardless of the keep-local flag.
func (a Artifact) RetentionExempt() bool {
	return a.Class == ClassRaw
}

// Validate checks the artifact definition.
func (a Artifact) Validate() error {
	if a.Name == "" {
		return &errors.ValidationError{Field: "name", Message: "artifact name is required"}
	}
	if a.OriginURL == "" {
		return &errors.ValidationError{Field: "origin_url", Value: a.Name, Message: "origin URL is required"}
	}
	switch a.Class {
	case ClassRaw, ClassDerived:
	default:
		return &errors.ValidationError{Field: "class", Value: string(a.Class),
			Message: fmt.Sprintf("unknown class for artifact %s", a.Name)}
	}
	return nil
}

// normalize fills derivable fields.
func (a Artifact) normalize() Artifact {
	if a.RepoPath == "" {
		a.RepoPath = a.Name
	}
	if a.Class == "" {
		a.Class = ClassRaw
	}
	if a.Revision == "" {
		if a.Class == ClassRaw {
			a.Revision = constants.RawDumpRevision
		} else {
			a.Revision = constants.DefaultRevision
		}
	}
	return a
}

// Defaults returns the built-in artifact set: the three Open Library
// bulk dumps, archived on the backup branch.
func Defaults() []Artifact {
	names := []string{
		"ol_dump_authors_latest.txt.gz",
		"ol_dump_editions_latest.txt.gz",
		"ol_dump_works_latest.txt.gz",
	}

	set := make([]Artifact, 0, len(names))
	for _, name := range names {
		set = append(set, Artifact{
			Name:      name,
			OriginURL: "https://openlibrary.org/data/" + name,
			Class:     ClassRaw,
		}.normalize())
	}
	return set
}

// file is the YAML document shape for an artifact set override.
type file struct {
	Artifacts []Artifact `yaml:"artifacts"`
}

// Load reads an artifact set from a YAML file, normalizing and
// validating each entry.
func Load(fs afero.Fs, path string) ([]Artifact, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	if len(doc.Artifacts) == 0 {
		return nil, &errors.ValidationError{Field: "artifacts", Value: path,
			Message: "no artifacts defined"}
	}

	set := make([]Artifact, 0, len(doc.Artifacts))
	for _, a := range doc.Artifacts {
		a = a.normalize()
		if err := a.Validate(); err != nil {
			return nil, err
		}
		set = append(set, a)
	}
	return set, nil
}

// Find returns the artifact with the given name from set.
func Find(set []Artifact, name string) (Artifact, bool) {
	for _, a := range set {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
