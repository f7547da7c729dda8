package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		path := writeConfig(t, `
url: https://emr.example.test
emr_credentials:
  username: doctor
  password: secret
  pin: "1234"
download_dir: /tmp/downloads
wait_seconds: 5
eform_catalog:
  Progress Note: 17
category_aliases:
  labs:
    - lab
    - bloodwork
llm:
  model: gpt-4o
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://emr.example.test", cfg.URL)
		assert.Equal(t, "doctor", cfg.Credentials.Username)
		assert.Equal(t, "1234", cfg.Credentials.PIN)
		assert.Equal(t, 5*time.Second, cfg.Wait())
		assert.Equal(t, 17, cfg.EformCatalog["Progress Note"])
		assert.Len(t, cfg.CategoryAliases["labs"], 2)
		assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	})

	t.Run("defaults for a minimal document", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "url: https://emr.example.test\n"))
		require.NoError(t, err)

		assert.Equal(t, 10*time.Second, cfg.Wait())
		assert.NotEmpty(t, cfg.DownloadDir)
		assert.Equal(t, DefaultEformURLTemplate, cfg.EformURLTemplate)
	})

	t.Run("sentinel is always present", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "url: https://emr.example.test\neform_catalog:\n  Note: 3\n"))
		require.NoError(t, err)

		id, ok := cfg.EformCatalog[AutoSentinel]
		require.True(t, ok, "sentinel entry missing")
		assert.Equal(t, 0, id)
		assert.Equal(t, 3, cfg.EformCatalog["Note"])
	})

	t.Run("environment overrides secrets", func(t *testing.T) {
		t.Setenv("SCRIBE_EMR_PASSWORD", "from-env")
		t.Setenv("SCRIBE_HEADLESS", "true")

		cfg, err := Load(writeConfig(t, "url: https://emr.example.test\nemr_credentials:\n  password: from-file\n"))
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Credentials.Password)
		assert.True(t, cfg.Headless)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestSetEformCatalog(t *testing.T) {
	path := writeConfig(t, "url: https://emr.example.test\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetEformCatalog(map[string]int{"Referral": 23}))
	assert.Equal(t, 23, cfg.EformCatalog["Referral"])
	assert.Contains(t, cfg.EformCatalog, AutoSentinel, "sentinel lost on rebuild")

	// The rebuild persists; a fresh load sees it.
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 23, reloaded.EformCatalog["Referral"])
}

func TestSaveWithoutBackingFile(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Save(), "save without a backing file must fail")
}
