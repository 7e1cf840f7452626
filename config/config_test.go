package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.NoSandbox)
	assert.True(t, cfg.Browser.DisableDevShm)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 1080, cfg.Browser.WindowHeight)
	assert.Equal(t, 10, cfg.Captcha.Steps)
	assert.Equal(t, 3, cfg.Captcha.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Scraper.RenderSettle)
	assert.Contains(t, cfg.Site.DataMarkers, "window.GLOBAL_DADA")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offerscrape.yml")
	yml := `
browser:
  headless: false
  window_width: 1280
  extra_flags: ["lang=zh-CN"]
captcha:
  steps: 30
  post_solve_settle: 5s
site:
  data_markers: ["window.PRODUCT_DATA"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("OFFERSCRAPE_CONFIG_FILE", path)
	t.Setenv("OFFERSCRAPE_CAPTCHA_STEPS", "12")
	t.Setenv("OFFERSCRAPE_CHROME_FLAGS", "mute-audio, lang=en-US")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 1080, cfg.Browser.WindowHeight, "fields absent from the file keep defaults")
	assert.Equal(t, []string{"mute-audio", "lang=en-US"}, cfg.Browser.ExtraFlags)
	assert.Equal(t, 12, cfg.Captcha.Steps)
	assert.Equal(t, 5*time.Second, cfg.Captcha.PostSolveSettle)
	assert.Equal(t, []string{"window.PRODUCT_DATA"}, cfg.Site.DataMarkers)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("OFFERSCRAPE_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yml"))
	_, err := Load()
	require.Error(t, err)
}

func TestEnvHelpers_IgnoreMalformed(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, envIntOr("X_INT", 7))
	assert.True(t, envBoolOr("X_BOOL", true))
	assert.Equal(t, time.Second, envDurationOr("X_DUR", time.Second))
	assert.Equal(t, []string{"a"}, envSliceOr("X_UNSET", []string{"a"}))
}
