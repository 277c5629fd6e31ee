// Package app provides the application context and dependency
// management for the oldump CLI. It centralizes configuration, logging,
// and construction of the sync engine, following the dependency
// injection pattern: no process-wide singletons beyond the default
// logger.
package app

import (
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/sayshara/oldump"
	"github.com/sayshara/oldump/internal/hub"
	"github.com/sayshara/oldump/pkg/artifacts"
	"github.com/sayshara/oldump/pkg/errors"
)

// App represents the oldump application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Filesystem all local IO goes through
	fs afero.Fs
}

// New creates a new App instance with the given version information.
func New(version, commit, date string) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		fs:      afero.NewOsFs(),
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Fs returns the filesystem used for local IO.
func (a *App) Fs() afero.Fs {
	return a.fs
}

// artifactSet loads the configured artifact set: the YAML override if
// one is configured, otherwise the built-in dump list.
func (a *App) artifactSet() ([]artifacts.Artifact, error) {
	if a.config.ArtifactsFile != "" {
		return artifacts.Load(a.fs, a.config.ArtifactsFile)
	}
	return artifacts.Defaults(), nil
}

// Syncer builds the sync engine from configuration.
func (a *App) Syncer() (*oldump.Syncer, error) {
	if a.config.RepoID == "" {
		return nil, &errors.ValidationError{Field: "repo_id",
			Message: "a dataset repo must be configured (HF_REPO_ID)"}
	}

	set, err := a.artifactSet()
	if err != nil {
		return nil, err
	}

	mirror := hub.New(a.fs, a.config.RepoID, a.config.Token,
		hub.WithEndpoint(a.config.Endpoint))

	opts := []oldump.Option{
		oldump.WithFs(a.fs),
		oldump.WithMirror(mirror),
		oldump.WithArtifacts(set),
		oldump.WithWorkDir(a.config.WorkDir),
	}
	if a.config.ManifestPath != "" {
		opts = append(opts, oldump.WithManifestPath(a.config.ManifestPath))
	}

	return oldump.New(opts...)
}
