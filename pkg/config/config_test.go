package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/dashboard/efficiency", cfg.TargetURL)
	assert.Equal(t, "admin@vyleramove.com", cfg.Email)
	assert.Equal(t, "password123", cfg.Password)
	assert.Equal(t, "verification/efficiency_dashboard.png", cfg.ArtifactPath)
	assert.Equal(t, "input[name='email']", cfg.EmailSelector)
	assert.Equal(t, "input[name='password']", cfg.PasswordSelector)
	assert.Equal(t, "button[type='submit']", cfg.SubmitSelector)
	assert.Equal(t, 3*time.Second, cfg.SettleTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.SettleQuietPeriod())
	assert.Equal(t, 5*time.Second, cfg.LoginTimeout)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"VERIFY_URL":             "https://fleet.example.com/dashboard",
		"VERIFY_EMAIL":           "ops@example.com",
		"VERIFY_LOGIN_TIMEOUT":   "12s",
		"VERIFY_SETTLE_QUIET":    "2s",
		"VERIFY_CAPTURE_TIMEOUT": "45s",
		"VERIFY_HEADLESS":        "false",
		"VERIFY_VIEWPORT_WIDTH":  "1920",
		"CHROME_BIN":             "/usr/bin/chromium",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://fleet.example.com/dashboard", cfg.TargetURL)
	assert.Equal(t, "ops@example.com", cfg.Email)
	assert.Equal(t, "password123", cfg.Password, "unset variables keep defaults")
	assert.Equal(t, 12*time.Second, cfg.LoginTimeout)
	assert.Equal(t, 2*time.Second, cfg.SettleQuietPeriod())
	assert.Equal(t, 45*time.Second, cfg.CaptureTimeout)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.Bin)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target_url: http://staging:3000/dashboard/efficiency
artifact_path: out/staging.png
settle_timeout: 10s
browser:
  stealth: true
`), 0o644))

	cfg, err := Load(lookupFrom(map[string]string{
		ConfigFileEnv:          path,
		"VERIFY_ARTIFACT_PATH": "out/override.png",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://staging:3000/dashboard/efficiency", cfg.TargetURL)
	assert.Equal(t, "out/override.png", cfg.ArtifactPath)
	assert.Equal(t, 10*time.Second, cfg.SettleTimeout)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, DefaultEmail, cfg.Email)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{
		ConfigFileEnv: filepath.Join(t.TempDir(), "missing.yaml"),
	}))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "empty url",
			mutate:  func(c *Config) { c.TargetURL = "" },
			wantErr: "target url is required",
		},
		{
			name:    "non http url",
			mutate:  func(c *Config) { c.TargetURL = "file:///etc/passwd" },
			wantErr: "must be http or https",
		},
		{
			name:    "empty artifact path",
			mutate:  func(c *Config) { c.ArtifactPath = "" },
			wantErr: "artifact path is required",
		},
		{
			name:    "zero settle timeout",
			mutate:  func(c *Config) { c.SettleTimeout = 0 },
			wantErr: "settle_timeout must be positive",
		},
		{
			name:    "quiet window longer than settle timeout",
			mutate:  func(c *Config) { c.SettleQuiet = 4 * time.Second },
			wantErr: "settle_quiet 4s exceeds settle_timeout 3s",
		},
		{
			name:    "negative quiet window",
			mutate:  func(c *Config) { c.SettleQuiet = -time.Second },
			wantErr: "settle_quiet must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunBudget(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 68*time.Second, cfg.RunBudget())
}
