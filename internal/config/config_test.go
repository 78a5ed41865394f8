package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("AI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Session.PerListCap)
	assert.Equal(t, 30*time.Second, cfg.GetGenerationTimeout())
	assert.Equal(t, 24*time.Hour, cfg.GetRetention())
	assert.Equal(t, "json", cfg.Seen.Backend)
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	path := filepath.Join(t.TempDir(), "xbot.yaml")
	content := `
session:
  per_list_cap: 5
pacing:
  min_delay: 10s
  max_delay: 20s
seen:
  backend: sqlite
  path: data/seen.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Session.PerListCap)
	assert.Equal(t, 10*time.Second, cfg.GetMinDelay())
	assert.Equal(t, 20*time.Second, cfg.GetMaxDelay())
	assert.Equal(t, "sqlite", cfg.Seen.Backend)
	// Untouched keys keep defaults
	assert.Equal(t, `article[data-testid="tweet"]`, cfg.Selectors.Post)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("OPENROUTER_API_KEY sets key", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "or-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "or-key", cfg.Generation.APIKey)
		assert.Equal(t, "openrouter", cfg.Generation.Provider)
	})

	t.Run("GEMINI_API_KEY switches provider when no other key", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.Generation.APIKey)
		assert.Equal(t, "gemini", cfg.Generation.Provider)
		assert.Equal(t, "gemini-2.0-flash", cfg.Generation.Model)
	})

	t.Run("OpenRouter wins over Gemini", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "or-key")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "or-key", cfg.Generation.APIKey)
		assert.Equal(t, "openrouter", cfg.Generation.Provider)
	})

	t.Run("paths and browser", func(t *testing.T) {
		t.Setenv("XBOT_SEEN_PATH", "/tmp/seen.json")
		t.Setenv("XBOT_PROFILES", "/tmp/profiles.yaml")
		t.Setenv("XBOT_BROWSER_URL", "ws://127.0.0.1:9222/devtools/browser/abc")
		t.Setenv("XBOT_HEADLESS", "false")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/seen.json", cfg.Seen.Path)
		assert.Equal(t, "/tmp/profiles.yaml", cfg.Profiles.Path)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.ControlURL)
		assert.False(t, cfg.Browser.Headless)
	})

	t.Run("supabase credentials", func(t *testing.T) {
		t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
		t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "https://abc.supabase.co", cfg.Profiles.URL)
		assert.Equal(t, "service", cfg.Profiles.Key)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Generation.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with key", mutate: func(*Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.Generation.APIKey = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Generation.Provider = "other" }, wantErr: true},
		{name: "cap zero", mutate: func(c *Config) { c.Session.PerListCap = 0 }, wantErr: true},
		{name: "cap above ceiling", mutate: func(c *Config) { c.Session.PerListCap = MaxPerListCap + 1 }, wantErr: true},
		{name: "cap at ceiling", mutate: func(c *Config) { c.Session.PerListCap = MaxPerListCap }},
		{name: "pacing inverted", mutate: func(c *Config) { c.Pacing.MinDelay = "2m"; c.Pacing.MaxDelay = "1m" }, wantErr: true},
		{name: "typing inverted", mutate: func(c *Config) { c.Pacing.TypingMin = "1s"; c.Pacing.TypingMax = "10ms" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Seen.Backend = "redis" }, wantErr: true},
		{name: "empty seen path", mutate: func(c *Config) { c.Seen.Path = "" }, wantErr: true},
		{name: "unknown profile source", mutate: func(c *Config) { c.Profiles.Source = "postgres" }, wantErr: true},
		{name: "supabase without credentials", mutate: func(c *Config) { c.Profiles.Source = "supabase" }, wantErr: true},
		{name: "supabase with credentials", mutate: func(c *Config) {
			c.Profiles.Source = "supabase"
			c.Profiles.URL = "https://abc.supabase.co"
			c.Profiles.Key = "service"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationAccessorsFallBack(t *testing.T) {
	cfg := &Config{}
	cfg.Browser.ComposerTimeout = "not-a-duration"

	assert.Equal(t, 10*time.Second, cfg.GetComposerTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetNavigationTimeout())
	assert.Equal(t, 3*time.Second, cfg.GetVerifyWait())
	assert.Equal(t, 40*time.Millisecond, cfg.GetTypingMin())
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "xbot.yaml")
	cfg := DefaultConfig()
	cfg.Session.PerListCap = 4

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Session.PerListCap)
}
