package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reply worker configuration. It is built once at startup
// and handed to every collaborator; nothing reads the environment later.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Selectors  SelectorConfig   `yaml:"selectors"`
	Generation GenerationConfig `yaml:"generation"`
	Seen       SeenConfig       `yaml:"seen"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Session    SessionConfig    `yaml:"session"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BrowserConfig configures the Chrome instance driven through rod.
type BrowserConfig struct {
	ControlURL        string   `yaml:"control_url"` // connect to an existing DevTools endpoint
	Bin               string   `yaml:"bin"`
	Flags             []string `yaml:"flags"`
	Headless          bool     `yaml:"headless"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	RenderTimeout     string   `yaml:"render_timeout"`
	ComposerTimeout   string   `yaml:"composer_timeout"`
	VerifyWait        string   `yaml:"verify_wait"`
	AllowedSites      []string `yaml:"allowed_sites"`   // cookie domains kept by the sanitizer
	LoginPaths        []string `yaml:"login_paths"`     // URL path prefixes of the login surface
	SubmitShortcut    string   `yaml:"submit_shortcut"` // "ctrl" or "meta" + Enter
}

// SelectorConfig holds the CSS selectors of the platform UI.
type SelectorConfig struct {
	Post        string `yaml:"post"`
	PostText    string `yaml:"post_text"`
	PostAuthor  string `yaml:"post_author"`
	PostPhoto   string `yaml:"post_photo"`
	ReplyButton string `yaml:"reply_button"`
	Composer    string `yaml:"composer"`
	ReplyMarker string `yaml:"reply_marker"` // visible text of the "Replying to" context line
}

// GenerationConfig configures the text-generation service.
type GenerationConfig struct {
	Provider string `yaml:"provider"` // openrouter, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SeenConfig configures the dedup store.
type SeenConfig struct {
	Backend      string `yaml:"backend"` // json, sqlite
	Path         string `yaml:"path"`
	Retention    string `yaml:"retention"`
	LegacyImport string `yaml:"legacy_import"` // JSON seen file imported by the sqlite backend
}

// ProfilesConfig configures the profile store.
type ProfilesConfig struct {
	Source string `yaml:"source"` // file, sqlite, supabase
	Path   string `yaml:"path"`
	URL    string `yaml:"url"` // supabase project URL
	Key    string `yaml:"-"`   // supabase service key, environment only
	Table  string `yaml:"table"`
}

// PacingConfig configures delays between actions.
type PacingConfig struct {
	MinDelay  string `yaml:"min_delay"`
	MaxDelay  string `yaml:"max_delay"`
	TypingMin string `yaml:"typing_min"`
	TypingMax string `yaml:"typing_max"`
}

// DefaultConfig returns the defaults used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1366,
			ViewportHeight:    900,
			NavigationTimeout: "60s",
			RenderTimeout:     "20s",
			ComposerTimeout:   "10s",
			VerifyWait:        "3s",
			AllowedSites:      []string{"x.com", "twitter.com"},
			LoginPaths:        []string{"/login", "/i/flow/login", "/i/flow/signup", "/account/access"},
			SubmitShortcut:    "ctrl",
		},
		Selectors: SelectorConfig{
			Post:        `article[data-testid="tweet"]`,
			PostText:    `[data-testid="tweetText"]`,
			PostAuthor:  `[data-testid="User-Name"]`,
			PostPhoto:   `[data-testid="tweetPhoto"] img`,
			ReplyButton: `[data-testid="reply"]`,
			Composer:    `[data-testid="tweetTextarea_0"]`,
			ReplyMarker: "Replying to",
		},
		Generation: GenerationConfig{
			Provider: "openrouter",
			Model:    "google/gemini-2.0-flash-001",
			BaseURL:  "https://openrouter.ai/api/v1",
			Timeout:  "30s",
		},
		Seen: SeenConfig{
			Backend:   "json",
			Path:      "data/seen.json",
			Retention: "24h",
		},
		Profiles: ProfilesConfig{
			Source: "file",
			Path:   "profiles.yaml",
			Table:  "profiles",
		},
		Session: SessionConfig{
			PerListCap: 3,
		},
		Pacing: PacingConfig{
			MinDelay:  "30s",
			MaxDelay:  "60s",
			TypingMin: "40ms",
			TypingMax: "120ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults when the file is absent
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// OpenRouter takes precedence over Gemini
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Generation.APIKey = key
		if c.Generation.Provider == "" {
			c.Generation.Provider = "openrouter"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Generation.APIKey == "" {
		c.Generation.APIKey = key
		c.Generation.Provider = "gemini"
		if c.Generation.Model == DefaultConfig().Generation.Model {
			c.Generation.Model = "gemini-2.0-flash"
		}
	}
	if key := os.Getenv("AI_API_KEY"); key != "" && c.Generation.APIKey == "" {
		c.Generation.APIKey = key
	}

	if path := os.Getenv("XBOT_SEEN_PATH"); path != "" {
		c.Seen.Path = path
	}
	if path := os.Getenv("XBOT_PROFILES"); path != "" {
		c.Profiles.Path = path
	}
	if url := os.Getenv("SUPABASE_URL"); url != "" {
		c.Profiles.URL = url
	}
	if key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); key != "" {
		c.Profiles.Key = key
	}
	if url := os.Getenv("XBOT_BROWSER_URL"); url != "" {
		c.Browser.ControlURL = url
	}
	if v := os.Getenv("XBOT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
}

// ValidProviders lists the supported generation providers.
var ValidProviders = []string{"openrouter", "gemini"}

// ValidSeenBackends lists the supported dedup store backends.
var ValidSeenBackends = []string{"json", "sqlite"}

// ValidProfileSources lists the supported profile stores.
var ValidProfileSources = []string{"file", "sqlite", "supabase"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Generation.APIKey == "" {
		return fmt.Errorf("generation API key not configured (set OPENROUTER_API_KEY or GEMINI_API_KEY)")
	}
	if !contains(ValidProviders, c.Generation.Provider) {
		return fmt.Errorf("invalid generation provider: %s (valid: %v)", c.Generation.Provider, ValidProviders)
	}
	if !contains(ValidSeenBackends, c.Seen.Backend) {
		return fmt.Errorf("invalid seen backend: %s (valid: %v)", c.Seen.Backend, ValidSeenBackends)
	}
	if c.Seen.Path == "" {
		return fmt.Errorf("seen.path cannot be empty")
	}
	if !contains(ValidProfileSources, c.Profiles.Source) {
		return fmt.Errorf("invalid profile source: %s (valid: %v)", c.Profiles.Source, ValidProfileSources)
	}
	if c.Profiles.Source == "supabase" && (c.Profiles.URL == "" || c.Profiles.Key == "") {
		return fmt.Errorf("supabase profile source needs SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
	}
	if err := c.ValidateSession(); err != nil {
		return err
	}
	if c.GetMinDelay() > c.GetMaxDelay() {
		return fmt.Errorf("pacing.min_delay (%s) exceeds pacing.max_delay (%s)", c.GetMinDelay(), c.GetMaxDelay())
	}
	if c.GetTypingMin() > c.GetTypingMax() {
		return fmt.Errorf("pacing.typing_min (%s) exceeds pacing.typing_max (%s)", c.GetTypingMin(), c.GetTypingMax())
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 60*time.Second)
}

// GetRenderTimeout returns how long to wait for the list to render posts.
func (c *Config) GetRenderTimeout() time.Duration {
	return parseDuration(c.Browser.RenderTimeout, 20*time.Second)
}

// GetComposerTimeout returns the bounded wait for the reply composer.
func (c *Config) GetComposerTimeout() time.Duration {
	return parseDuration(c.Browser.ComposerTimeout, 10*time.Second)
}

// GetVerifyWait returns the wait before checking the composer closed.
func (c *Config) GetVerifyWait() time.Duration {
	return parseDuration(c.Browser.VerifyWait, 3*time.Second)
}

// GetGenerationTimeout returns the generation call timeout.
func (c *Config) GetGenerationTimeout() time.Duration {
	return parseDuration(c.Generation.Timeout, 30*time.Second)
}

// GetRetention returns the dedup retention window.
func (c *Config) GetRetention() time.Duration {
	return parseDuration(c.Seen.Retention, 24*time.Hour)
}

// GetMinDelay returns the lower bound of the pacing window.
func (c *Config) GetMinDelay() time.Duration {
	return parseDuration(c.Pacing.MinDelay, 30*time.Second)
}

// GetMaxDelay returns the upper bound of the pacing window.
func (c *Config) GetMaxDelay() time.Duration {
	return parseDuration(c.Pacing.MaxDelay, 60*time.Second)
}

// GetTypingMin returns the minimum inter-keystroke delay.
func (c *Config) GetTypingMin() time.Duration {
	return parseDuration(c.Pacing.TypingMin, 40*time.Millisecond)
}

// GetTypingMax returns the maximum inter-keystroke delay.
func (c *Config) GetTypingMax() time.Duration {
	return parseDuration(c.Pacing.TypingMax, 120*time.Millisecond)
}
