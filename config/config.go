// Package config loads the reduction settings: where esorex lives, which
// static calibration files to use, and default recipe parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vimospipe/esorex"
	"vimospipe/sof"
)

// Environment variables that override the config file.
const (
	EnvEsorex   = "VIMOS_ESOREX"
	EnvCalibDir = "VIMOS_CALIB_DIR"
	EnvLedger   = "VIMOS_LEDGER"
)

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "vimospipe.yaml"

// Config is the content of vimospipe.yaml.
type Config struct {
	// Esorex is the esorex executable.
	Esorex string `yaml:"esorex"`
	// CalibDir is the directory relative static calibration names resolve against.
	CalibDir string `yaml:"calib_dir"`
	// Static maps a category (LINE_CATALOG, IFU_IDENT, EXTINCT_TABLE,
	// STD_FLUX_TABLE) to a file.
	Static map[string]string `yaml:"static"`
	// Recipes holds extra parameters per recipe name.
	Recipes map[string]map[string]string `yaml:"recipes"`
	// Ledger is the sqlite file runs are recorded in. "off" disables it.
	Ledger string `yaml:"ledger"`
}

// Default returns the settings of the HR-blue IFU setup.
func Default() *Config {
	return &Config{
		Esorex: esorex.DefaultBinary,
		Static: map[string]string{
			"LINE_CATALOG":   "lcat_HR_blue.tfits",
			"IFU_IDENT":      "ifu_ident_HR_blue.1.fits",
			"EXTINCT_TABLE":  "extinct_table.tfits",
			"STD_FLUX_TABLE": "ltt4816.tfits",
		},
		Recipes: map[string]map[string]string{},
		Ledger:  "vimospipe.db",
	}
}

// Load reads path (or DefaultFile when path is empty and it exists), then a
// .env file if present, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEsorex); v != "" {
		c.Esorex = v
	}
	if v := os.Getenv(EnvCalibDir); v != "" {
		c.CalibDir = v
	}
	if v := os.Getenv(EnvLedger); v != "" {
		c.Ledger = v
	}
}

// LedgerEnabled reports whether runs should be recorded.
func (c *Config) LedgerEnabled() bool {
	return c.Ledger != "" && c.Ledger != "off"
}

// StaticPath resolves the static calibration file of a category.
func (c *Config) StaticPath(category string) (string, bool) {
	name, ok := c.Static[category]
	if !ok || name == "" {
		return "", false
	}
	if filepath.IsAbs(name) || c.CalibDir == "" {
		return name, true
	}
	return filepath.Join(c.CalibDir, name), true
}

// StaticFrames returns every configured static calibration as a frame set.
func (c *Config) StaticFrames() sof.FrameSet {
	fs := sof.FrameSet{}
	for cat := range c.Static {
		if p, ok := c.StaticPath(cat); ok {
			fs.Set(cat, p)
		}
	}
	return fs
}

// RecipeParams merges the configured parameters of recipe over defaults.
func (c *Config) RecipeParams(recipe string, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range c.Recipes[recipe] {
		out[k] = v
	}
	return out
}
