package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Site      SiteConfig      `yaml:"site"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host      string `yaml:"host"`       // default: "0.0.0.0"
	Port      int    `yaml:"port"`       // default: 8000
	Mode      string `yaml:"mode"`       // "debug", "release", "test"; default: "release"
	APIPrefix string `yaml:"api_prefix"` // default: "/api"
}

// BrowserConfig enumerates the browser launch configuration.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: true

	// DisableDevShm makes Chrome write shared memory to /tmp instead of /dev/shm.
	DisableDevShm bool `yaml:"disable_dev_shm"` // default: true

	// WindowWidth and WindowHeight size both the window and the viewport.
	WindowWidth  int `yaml:"window_width"`  // default: 1920
	WindowHeight int `yaml:"window_height"` // default: 1080

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// Proxy is passed to --proxy-server when set.
	Proxy string `yaml:"proxy"`

	// Stealth injects go-rod/stealth evasions into every session page.
	Stealth bool `yaml:"stealth"` // default: true

	// ExtraFlags are additional "name" or "name=value" Chrome switches.
	ExtraFlags []string `yaml:"extra_flags"`

	// MaxSessions bounds how many browsers may be alive at once.
	MaxSessions int `yaml:"max_sessions"` // default: 4

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// AcceptLanguage is sent with every page request.
	AcceptLanguage string `yaml:"accept_language"` // default: "zh-CN,zh;q=0.9,en;q=0.8"
}

// SiteConfig describes the target site's markup conventions.
type SiteConfig struct {
	// BaseURL is the offer path prefix; product ids are appended to it.
	BaseURL string `yaml:"base_url"` // default: "https://detail.1688.com/offer"

	// DataMarkers are substrings present only on a genuinely unblocked page.
	DataMarkers []string `yaml:"data_markers"`

	// ChallengeTitles are page titles of the dedicated challenge page.
	ChallengeTitles []string `yaml:"challenge_titles"`

	// ChallengeTexts are body copy shown by the slider prompt.
	ChallengeTexts []string `yaml:"challenge_texts"`

	// HandleSelector and TrackSelector locate the slider parts.
	HandleSelector string `yaml:"handle_selector"` // default: "#nc_1_n1z"
	TrackSelector  string `yaml:"track_selector"`  // default: "#nc_1_n1t"
}

// ScraperConfig controls the per-product fetch.
type ScraperConfig struct {
	// RenderSettle is the wait after navigation before reading the page.
	RenderSettle time.Duration `yaml:"render_settle"` // default: 3s

	// ReloadSettle is the wait after the forced reload between solve cycles.
	ReloadSettle time.Duration `yaml:"reload_settle"` // default: 2s

	// RequestTimeout bounds one whole product fetch.
	RequestTimeout time.Duration `yaml:"request_timeout"` // default: 3m

	// DebugDumpDir, when set, receives the page source of every failed URL.
	DebugDumpDir string `yaml:"debug_dump_dir"`
}

// CaptchaConfig controls the slider solver.
type CaptchaConfig struct {
	// Steps is the number of discrete drag moves.
	Steps int `yaml:"steps"` // default: 10

	// HandleTimeout is the max wait for the slider handle to appear.
	HandleTimeout time.Duration `yaml:"handle_timeout"` // default: 10s

	// PostSolveSettle is the wait after release for the verification callback.
	PostSolveSettle time.Duration `yaml:"post_solve_settle"` // default: 2s

	// MaxAttempts bounds one SolveWithRetry call.
	MaxAttempts int `yaml:"max_attempts"` // default: 3

	// BackoffBase and BackoffMax shape the delay between attempts.
	BackoffBase time.Duration `yaml:"backoff_base"` // default: 1s
	BackoffMax  time.Duration `yaml:"backoff_max"`  // default: 3s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: false

	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 1

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 4
}

// CacheConfig controls the product result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int `yaml:"max_entries"` // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			Mode:      "release",
			APIPrefix: "/api",
		},
		Browser: BrowserConfig{
			Headless:             true,
			NoSandbox:            true,
			DisableDevShm:        true,
			WindowWidth:          1920,
			WindowHeight:         1080,
			Stealth:              true,
			MaxSessions:          4,
			BlockedResourceTypes: []string{"Font", "Media"},
			AcceptLanguage:       "zh-CN,zh;q=0.9,en;q=0.8",
		},
		Site: SiteConfig{
			BaseURL:         "https://detail.1688.com/offer",
			DataMarkers:     []string{"window.__GLOBAL_DADA", "window.GLOBAL_DADA"},
			ChallengeTitles: []string{"Captcha Interception", "验证码拦截"},
			ChallengeTexts:  []string{"Please slide to verify", "请按住滑块", "滑动验证"},
			HandleSelector:  "#nc_1_n1z",
			TrackSelector:   "#nc_1_n1t",
		},
		Scraper: ScraperConfig{
			RenderSettle:   3 * time.Second,
			ReloadSettle:   2 * time.Second,
			RequestTimeout: 3 * time.Minute,
		},
		Captcha: CaptchaConfig{
			Steps:           10,
			HandleTimeout:   10 * time.Second,
			PostSolveSettle: 2 * time.Second,
			MaxAttempts:     3,
			BackoffBase:     1 * time.Second,
			BackoffMax:      3 * time.Second,
		},
		Auth: AuthConfig{Enabled: false},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             4,
		},
		Cache: CacheConfig{MaxEntries: 500},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file named by OFFERSCRAPE_CONFIG_FILE, and environment variables
// (a .env file in the working directory is loaded into the environment first).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("OFFERSCRAPE_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = envOr("OFFERSCRAPE_HOST", s.Host)
	s.Port = envIntOr("OFFERSCRAPE_PORT", s.Port)
	s.Mode = envOr("OFFERSCRAPE_MODE", s.Mode)
	s.APIPrefix = envOr("API_PREFIX", s.APIPrefix)

	b := &cfg.Browser
	b.Headless = envBoolOr("OFFERSCRAPE_HEADLESS", b.Headless)
	b.NoSandbox = envBoolOr("OFFERSCRAPE_NO_SANDBOX", b.NoSandbox)
	b.DisableDevShm = envBoolOr("OFFERSCRAPE_DISABLE_DEV_SHM", b.DisableDevShm)
	b.WindowWidth = envIntOr("OFFERSCRAPE_WINDOW_WIDTH", b.WindowWidth)
	b.WindowHeight = envIntOr("OFFERSCRAPE_WINDOW_HEIGHT", b.WindowHeight)
	b.BrowserBin = envOr("OFFERSCRAPE_BROWSER_BIN", b.BrowserBin)
	b.Proxy = envOr("OFFERSCRAPE_PROXY", b.Proxy)
	b.Stealth = envBoolOr("OFFERSCRAPE_STEALTH", b.Stealth)
	b.ExtraFlags = envSliceOr("OFFERSCRAPE_CHROME_FLAGS", b.ExtraFlags)
	b.MaxSessions = envIntOr("OFFERSCRAPE_MAX_SESSIONS", b.MaxSessions)
	b.BlockedResourceTypes = envSliceOr("OFFERSCRAPE_BLOCKED_RESOURCES", b.BlockedResourceTypes)
	b.AcceptLanguage = envOr("OFFERSCRAPE_ACCEPT_LANGUAGE", b.AcceptLanguage)

	site := &cfg.Site
	site.BaseURL = envOr("OFFERSCRAPE_BASE_URL", site.BaseURL)
	site.DataMarkers = envSliceOr("OFFERSCRAPE_DATA_MARKERS", site.DataMarkers)
	site.ChallengeTitles = envSliceOr("OFFERSCRAPE_CHALLENGE_TITLES", site.ChallengeTitles)
	site.ChallengeTexts = envSliceOr("OFFERSCRAPE_CHALLENGE_TEXTS", site.ChallengeTexts)
	site.HandleSelector = envOr("OFFERSCRAPE_HANDLE_SELECTOR", site.HandleSelector)
	site.TrackSelector = envOr("OFFERSCRAPE_TRACK_SELECTOR", site.TrackSelector)

	sc := &cfg.Scraper
	sc.RenderSettle = envDurationOr("OFFERSCRAPE_RENDER_SETTLE", sc.RenderSettle)
	sc.ReloadSettle = envDurationOr("OFFERSCRAPE_RELOAD_SETTLE", sc.ReloadSettle)
	sc.RequestTimeout = envDurationOr("OFFERSCRAPE_REQUEST_TIMEOUT", sc.RequestTimeout)
	sc.DebugDumpDir = envOr("OFFERSCRAPE_DEBUG_DUMP_DIR", sc.DebugDumpDir)

	c := &cfg.Captcha
	c.Steps = envIntOr("OFFERSCRAPE_CAPTCHA_STEPS", c.Steps)
	c.HandleTimeout = envDurationOr("OFFERSCRAPE_CAPTCHA_HANDLE_TIMEOUT", c.HandleTimeout)
	c.PostSolveSettle = envDurationOr("OFFERSCRAPE_CAPTCHA_SETTLE", c.PostSolveSettle)
	c.MaxAttempts = envIntOr("OFFERSCRAPE_CAPTCHA_MAX_ATTEMPTS", c.MaxAttempts)
	c.BackoffBase = envDurationOr("OFFERSCRAPE_CAPTCHA_BACKOFF_BASE", c.BackoffBase)
	c.BackoffMax = envDurationOr("OFFERSCRAPE_CAPTCHA_BACKOFF_MAX", c.BackoffMax)

	cfg.Auth.Enabled = envBoolOr("OFFERSCRAPE_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.APIKeys = envSliceOr("OFFERSCRAPE_API_KEYS", cfg.Auth.APIKeys)

	cfg.RateLimit.RequestsPerSecond = envFloatOr("OFFERSCRAPE_RATE_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = envIntOr("OFFERSCRAPE_RATE_BURST", cfg.RateLimit.Burst)

	cfg.Cache.MaxEntries = envIntOr("OFFERSCRAPE_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)

	cfg.Log.Level = envOr("OFFERSCRAPE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("OFFERSCRAPE_LOG_FORMAT", cfg.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
