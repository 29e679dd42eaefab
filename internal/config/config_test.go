package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should create a default config on first run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendFile, cfg.Storage)
		assert.Equal(t, "feed/latest.ndjson", cfg.FeedBlob)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("Should load and normalize a partial config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage: azure\nextractors:\n  - chi_city_council\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendAzure, cfg.Storage)
		assert.Equal(t, []string{"chi_city_council"}, cfg.Extractors)
		assert.Equal(t, "runs", cfg.RunsPrefix)
		assert.Equal(t, "0 6 * * *", cfg.RefreshCron)
	})

	t.Run("Should reject an empty path", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("Should reject malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\n\t- nope"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Should reject an unknown backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage = "s3"
		cfg.Extractors = []string{"x"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("Should reject an empty extractor allowlist", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.Validate())
	})

	t.Run("Should accept a complete config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Extractors = []string{"chi_city_council"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestSave(t *testing.T) {
	t.Run("Should round-trip through Save and Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")

		in := DefaultConfig()
		in.Storage = BackendAzure
		in.Extractors = []string{"alpha", "beta"}
		in.ForwardOnly = true
		require.NoError(t, in.Save(path))

		out, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}
