// Package config loads conj settings from JSON-with-comments files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/conjecture/pkg/conjecture"
	"github.com/calvinalkan/conjecture/pkg/conjecture/exampledb"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrUnknownProfile     = errors.New("unknown profile")
)

// FileName is the project config file name.
const FileName = ".conjecture.json"

// ProfileEnv selects a named profile.
const ProfileEnv = "CONJECTURE_PROFILE"

// KindNone disables the example database.
const KindNone = "none"

// Database selects the example database backend.
type Database struct {
	Kind string `json:"kind,omitempty"`
	Path string `json:"path,omitempty"`
}

// Overlay is one layer of settings. Nil fields leave the layer below
// unchanged.
type Overlay struct {
	MaxExamples         *int      `json:"max_examples,omitempty"`
	MaxShrinks          *int      `json:"max_shrinks,omitempty"`
	MaxShrinkTime       *string   `json:"max_shrink_time,omitempty"`
	MaxSize             *int      `json:"max_size,omitempty"`
	Deadline            *string   `json:"deadline,omitempty"`
	DeadlinePolicy      *string   `json:"deadline_policy,omitempty"`
	CollectAllFailures  *bool     `json:"collect_all_failures,omitempty"`
	MaxDistinctFailures *int      `json:"max_distinct_failures,omitempty"`
	Seed                *int64    `json:"seed,omitempty"`
	Derandomize         *bool     `json:"derandomize,omitempty"`
	Phases              []string  `json:"phases,omitempty"`
	PrintBlob           *bool     `json:"print_blob,omitempty"`
	SuppressHealthCheck []string  `json:"suppress_health_check,omitempty"`
	Database            *Database `json:"database,omitempty"`
	Verbosity           *string   `json:"verbosity,omitempty"`
}

// File is the shape of a config file: a base layer plus named profiles.
type File struct {
	Overlay

	Profiles map[string]Overlay `json:"profiles,omitempty"`
}

// Config is the effective configuration.
type Config struct {
	Settings  conjecture.Settings
	Database  Database
	Verbosity Verbosity
	Profile   string

	// Resolved values (computed, not serialized)
	EffectiveCwd string
	Sources      Sources
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

var builtinProfiles = map[string]Overlay{
	"ci": {
		MaxExamples:    ptr(1000),
		Derandomize:    ptr(true),
		DeadlinePolicy: ptr("ignore"),
		PrintBlob:      ptr(true),
	},
	"dev": {
		MaxExamples: ptr(10),
		Verbosity:   ptr(string(VerbosityVerbose)),
	},
}

var defaultDatabasePaths = map[string]string{
	exampledb.KindDirectory: filepath.Join(".conjecture", "examples"),
	exampledb.KindBolt:      filepath.Join(".conjecture", "examples.db"),
}

// Default returns the configuration used when no file sets anything.
func Default() Config {
	return Config{
		Settings:  conjecture.DefaultSettings(),
		Database:  Database{Kind: exampledb.KindDirectory},
		Verbosity: VerbosityNormal,
	}
}

func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "conj", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "conj", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C flag; if empty, os.Getwd() is used
	ConfigPath      string            // -c flag; the file must exist
	Env             map[string]string // environment variables
	Overrides       Overlay           // command-line flags
}

// Load builds the effective configuration with the following precedence
// (highest wins):
//  1. Defaults
//  2. Global config ($XDG_CONFIG_HOME/conj/config.json or ~/.config/conj/config.json)
//  3. Project config (.conjecture.json) or the explicit -c file
//  4. Command-line overrides
//
// Within a file the profile named by CONJECTURE_PROFILE is applied on top of
// the file's base layer. The database path is resolved against the working
// directory.
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()
	cfg.Profile = in.Env[ProfileEnv]
	profileFound := cfg.Profile == ""

	if profile, ok := builtinProfiles[cfg.Profile]; ok {
		profileFound = true

		if err := cfg.apply(profile); err != nil {
			return Config{}, fmt.Errorf("%w: builtin profile %s: %w", ErrConfigInvalid, cfg.Profile, err)
		}
	}

	layers := []fileLayer{
		{globalPath(in.Env), false, &cfg.Sources.Global},
		projectLayer(workDir, in.ConfigPath, &cfg.Sources.Project),
	}

	for _, layer := range layers {
		if layer.path == "" {
			continue
		}

		file, loaded, err := loadFile(layer.path, layer.mustExist)
		if err != nil {
			return Config{}, err
		}

		if !loaded {
			continue
		}

		*layer.source = layer.path

		if err := cfg.apply(file.Overlay); err != nil {
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, layer.path, err)
		}

		if profile, ok := file.Profiles[cfg.Profile]; ok && cfg.Profile != "" {
			profileFound = true

			if err := cfg.apply(profile); err != nil {
				return Config{}, fmt.Errorf("%w %s: profile %s: %w", ErrConfigInvalid, layer.path, cfg.Profile, err)
			}
		}
	}

	if !profileFound {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownProfile, cfg.Profile)
	}

	if err := cfg.apply(in.Overrides); err != nil {
		return Config{}, fmt.Errorf("%w: flags: %w", ErrConfigInvalid, err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePaths[cfg.Database.Kind]
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(workDir, cfg.Database.Path)
	}

	return cfg, nil
}

type fileLayer struct {
	path      string
	mustExist bool
	source    *string
}

func projectLayer(workDir, configPath string, source *string) fileLayer {
	if configPath == "" {
		return fileLayer{filepath.Join(workDir, FileName), false, source}
	}

	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(workDir, configPath)
	}

	return fileLayer{configPath, true, source}
}

func loadFile(path string, mustExist bool) (File, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err) && mustExist:
			return File{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		case mustExist:
			return File{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		default:
			return File{}, false, nil
		}
	}

	file, err := Parse(data)
	if err != nil {
		return File{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return file, true, nil
}

// Parse decodes a config file. Comments and trailing commas are allowed.
func Parse(data []byte) (File, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return File{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var file File

	if err := json.Unmarshal(standardized, &file); err != nil {
		return File{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return file, nil
}

func (c *Config) apply(o Overlay) error {
	s := &c.Settings

	setInt(&s.MaxExamples, o.MaxExamples)
	setInt(&s.MaxShrinks, o.MaxShrinks)
	setInt(&s.MaxSize, o.MaxSize)
	setInt(&s.MaxDistinctFailures, o.MaxDistinctFailures)

	if o.Seed != nil {
		s.Seed = *o.Seed
	}

	if o.CollectAllFailures != nil {
		s.CollectAllFailures = *o.CollectAllFailures
	}

	if o.Derandomize != nil {
		s.Derandomize = *o.Derandomize
	}

	if o.PrintBlob != nil {
		s.PrintBlob = *o.PrintBlob
	}

	if err := setDuration(&s.MaxShrinkTime, o.MaxShrinkTime, "max_shrink_time"); err != nil {
		return err
	}

	if err := setDuration(&s.Deadline, o.Deadline, "deadline"); err != nil {
		return err
	}

	if o.DeadlinePolicy != nil {
		p, err := conjecture.ParseDeadlinePolicy(*o.DeadlinePolicy)
		if err != nil {
			return err
		}

		s.DeadlinePolicy = p
	}

	if o.Phases != nil {
		p, err := conjecture.ParsePhases(o.Phases)
		if err != nil {
			return err
		}

		s.Phases = p
	}

	if o.SuppressHealthCheck != nil {
		checks := make([]conjecture.HealthCheck, 0, len(o.SuppressHealthCheck))

		for _, name := range o.SuppressHealthCheck {
			hc, err := conjecture.ParseHealthCheck(name)
			if err != nil {
				return err
			}

			checks = append(checks, hc)
		}

		s.HealthCheck.Suppress = checks
	}

	if o.Database != nil {
		if o.Database.Kind != "" {
			c.Database.Kind = o.Database.Kind
		}

		if o.Database.Path != "" {
			c.Database.Path = o.Database.Path
		}
	}

	if o.Verbosity != nil {
		v, err := ParseVerbosity(*o.Verbosity)
		if err != nil {
			return err
		}

		c.Verbosity = v
	}

	return nil
}

func (c *Config) validate() error {
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	switch c.Database.Kind {
	case KindNone, exampledb.KindMemory:
	case exampledb.KindDirectory, exampledb.KindBolt:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database %s needs a path", ErrConfigInvalid, c.Database.Kind)
		}
	default:
		return fmt.Errorf("%w: %w: %q", ErrConfigInvalid, exampledb.ErrUnknownKind, c.Database.Kind)
	}

	return nil
}

// OpenDatabase opens the configured backend, nil for kind "none".
func (c Config) OpenDatabase() (exampledb.DB, error) {
	if c.Database.Kind == KindNone {
		return nil, nil
	}

	return exampledb.Open(c.Database.Kind, c.Database.Path)
}

// Format renders the effective configuration as a config file.
func (c Config) Format() (string, error) {
	s := c.Settings

	suppress := make([]string, 0, len(s.HealthCheck.Suppress))
	for _, hc := range s.HealthCheck.Suppress {
		suppress = append(suppress, string(hc))
	}

	sort.Strings(suppress)

	phases := []string{}
	if s.Phases != 0 {
		phases = strings.Split(s.Phases.String(), ",")
	}

	o := Overlay{
		MaxExamples:         ptr(s.MaxExamples),
		MaxShrinks:          ptr(s.MaxShrinks),
		MaxShrinkTime:       ptr(formatDuration(s.MaxShrinkTime)),
		MaxSize:             ptr(s.MaxSize),
		Deadline:            ptr(formatDuration(s.Deadline)),
		DeadlinePolicy:      ptr(s.DeadlinePolicy.String()),
		CollectAllFailures:  ptr(s.CollectAllFailures),
		MaxDistinctFailures: ptr(s.MaxDistinctFailures),
		Seed:                ptr(s.Seed),
		Derandomize:         ptr(s.Derandomize),
		Phases:              phases,
		PrintBlob:           ptr(s.PrintBlob),
		SuppressHealthCheck: suppress,
		Database:            &c.Database,
		Verbosity:           ptr(string(c.Verbosity)),
	}

	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	return string(data) + "\n", nil
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	return d.String()
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}

	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}

	*dst = d

	return nil
}

func ptr[T any](v T) *T { return &v }
