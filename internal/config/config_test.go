package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GROQ_API_KEY", "OPENROUTER_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY",
		"ESV_API_KEY", "LLM_PROVIDER", "SCRIBBY_DB_PATH", "SCRIBBY_METRICS_PATH",
		"SCRIBBY_CACHE_BACKEND", "REDIS_URL", "SCRIBBY_LOG_LEVEL", "SCRIBBY_ATTEMPT_TIMEOUT_SEC",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, ModeAuto, cfg.LLM.Provider)
	assert.Equal(t, []string{"groq", "openrouter", "gemini", "claude"}, cfg.LLM.Order)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 120, cfg.LLM.AttemptTimeoutSec)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
provider = "gemini"
order = ["gemini", "claude"]

[llm.gemini]
api_key = "from-file"
model = "gemini-2.0-flash-lite"

[llm.claude]
base_url = "http://localhost:9999"
`), 0o644))
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("LLM_PROVIDER", " Claude ")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, []string{"gemini", "claude"}, cfg.LLM.Order)
	assert.Equal(t, "from-file", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.LLM.Gemini.Model)
	assert.Equal(t, "from-env", cfg.LLM.Claude.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.LLM.Claude.BaseURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"unknown mode":    "[llm]\nprovider = \"openai\"\n",
		"unknown order":   "[llm]\norder = [\"groq\", \"mistral\"]\n",
		"bad alias":       "[llm.aliases]\nfast = \"mistral\"\n",
		"zero timeout":    "[llm]\nattempt_timeout_sec = 0\n",
		"redis no url":    "[cache]\nbackend = \"redis\"\n",
		"unknown cache":   "[cache]\nbackend = \"memcached\"\n",
		"unknown logging": "[log]\nformat = \"xml\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadRejectsBadTimeoutEnv(t *testing.T) {
	for _, v := range []string{"abc", "12s", "1.5"} {
		t.Run(v, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SCRIBBY_ATTEMPT_TIMEOUT_SEC", v)

			_, err := Load("")
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), "SCRIBBY_ATTEMPT_TIMEOUT_SEC")
		})
	}
}

func TestLoadTimeoutFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCRIBBY_ATTEMPT_TIMEOUT_SEC", "30")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.LLM.AttemptTimeoutSec)
}

func TestLoadMalformedTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm\nprovider="), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestAliasModeIsAccepted(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadDotenv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ESV_API_KEY=esv-from-dotenv\n"), 0o644))
	require.NoError(t, os.Unsetenv("ESV_API_KEY"))

	require.NoError(t, LoadDotenv(path))
	assert.Equal(t, "esv-from-dotenv", os.Getenv("ESV_API_KEY"))

	assert.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestBackendLookup(t *testing.T) {
	c := LLMConfig{Claude: BackendConfig{Model: "claude-haiku-4-5-20251001"}}
	b, ok := c.Backend("claude")
	assert.True(t, ok)
	assert.Equal(t, "claude-haiku-4-5-20251001", b.Model)

	_, ok = c.Backend("mistral")
	assert.False(t, ok)
}
