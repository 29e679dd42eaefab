package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Storage backend selectors.
const (
	BackendAzure = "azure"
	BackendFile  = "file"
)

// Config is the top-level reconciliation-job configuration. Azure
// credentials deliberately do not live here; they come from the environment
// and their absence is a startup failure.
type Config struct {
	// Storage selects the blob backend: "azure" or "file".
	Storage string `yaml:"storage" json:"storage"`

	// FileRoot is the base directory for the "file" backend.
	FileRoot string `yaml:"file_root" json:"file_root"`

	// FeedBlob names the published feed blob.
	FeedBlob string `yaml:"feed_blob" json:"feed_blob"`

	// RunsPrefix is the blob directory extractors write run output into,
	// one "<extractor>.ndjson" per extractor.
	RunsPrefix string `yaml:"runs_prefix" json:"runs_prefix"`

	// Extractors is the explicit allowlist of extractors each run
	// refreshes. Stale feed records from names outside this list are kept;
	// names inside it are purged and replaced.
	Extractors []string `yaml:"extractors" json:"extractors"`

	// ForwardOnly drops records that already started from the published
	// feed. Deployment policy, off by default.
	ForwardOnly bool `yaml:"forward_only" json:"forward_only"`

	// FirstRun acknowledges that no published feed exists yet. Leave false
	// once the first feed has been published so a vanished blob is treated
	// as the failure it is.
	FirstRun bool `yaml:"first_run" json:"first_run"`

	// RefreshCron is a cron-style schedule (e.g. "0 6 * * *") used when the
	// job runs as a long-lived process instead of one-shot.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ICSPath, if set, additionally writes an iCalendar rendering of the
	// feed to this local path after each successful run.
	ICSPath string `yaml:"ics_path,omitempty" json:"ics_path,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage:     BackendFile,
		FileRoot:    "./var/civicfeed",
		FeedBlob:    "feed/latest.ndjson",
		RunsPrefix:  "runs",
		Extractors:  []string{},
		ForwardOnly: false,
		FirstRun:    false,
		RefreshCron: "0 6 * * *",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Storage == "" {
		c.Storage = BackendFile
	}
	if c.FileRoot == "" {
		c.FileRoot = "./var/civicfeed"
	}
	if c.FeedBlob == "" {
		c.FeedBlob = "feed/latest.ndjson"
	}
	if c.RunsPrefix == "" {
		c.RunsPrefix = "runs"
	}
	if c.Extractors == nil {
		c.Extractors = []string{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 6 * * *"
	}
}

// Validate reports configuration errors that must stop the job before any
// I/O happens.
func (c *Config) Validate() error {
	switch c.Storage {
	case BackendAzure, BackendFile:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage)
	}
	if len(c.Extractors) == 0 {
		return errors.New("config: extractors allowlist is empty")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write a
//     default config with 0600 perms, and return the default config.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically via
// a temp file + rename, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".civicfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
