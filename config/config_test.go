package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
esorex: /opt/vimos/bin/esorex
calib_dir: /opt/vimos/cal
static:
  LINE_CATALOG: lcat_LR_red.tfits
  STD_FLUX_TABLE: /elsewhere/ltt7987.tfits
recipes:
  vmifuscience:
    CalibrateFlux: "false"
ledger: "off"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimospipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/vimos/bin/esorex", cfg.Esorex)
	assert.False(t, cfg.LedgerEnabled())

	p, ok := cfg.StaticPath("LINE_CATALOG")
	require.True(t, ok)
	assert.Equal(t, "/opt/vimos/cal/lcat_LR_red.tfits", p)

	p, ok = cfg.StaticPath("STD_FLUX_TABLE")
	require.True(t, ok)
	assert.Equal(t, "/elsewhere/ltt7987.tfits", p)

	_, ok = cfg.StaticPath("IFU_IDS")
	assert.False(t, ok)

	params := cfg.RecipeParams("vmifuscience", map[string]string{"CalibrateFlux": "true", "Other": "1"})
	assert.Equal(t, map[string]string{"CalibrateFlux": "false", "Other": "1"}, params)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vimospipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	t.Setenv(EnvEsorex, "/usr/local/bin/esorex")
	t.Setenv(EnvCalibDir, "/cal")
	t.Setenv(EnvLedger, "/tmp/runs.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/esorex", cfg.Esorex)
	assert.Equal(t, "/cal", cfg.CalibDir)
	assert.True(t, cfg.LedgerEnabled())
	assert.Equal(t, "/tmp/runs.db", cfg.Ledger)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("static: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultStaticFrames(t *testing.T) {
	cfg := Default()
	cfg.CalibDir = "/cal"

	fs := cfg.StaticFrames()
	assert.Equal(t, []string{"EXTINCT_TABLE", "IFU_IDENT", "LINE_CATALOG", "STD_FLUX_TABLE"}, fs.Categories())
	first, _ := fs.First("EXTINCT_TABLE")
	assert.Equal(t, "/cal/extinct_table.tfits", first)
	assert.Equal(t, "esorex", cfg.Esorex)
	assert.True(t, cfg.LedgerEnabled())
}
