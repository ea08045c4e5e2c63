// Package config holds the settings of a dashboard verification run.
//
// Defaults describe the local development setup: one dashboard URL,
// one pair of credentials, one artifact path. A YAML file named by
// VERIFY_CONFIG and then environment variables may override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"

	"dev/bravebird/dashboard-verify/pkg/browser"
)

const (
	DefaultTargetURL        = "http://localhost:3000/dashboard/efficiency"
	DefaultEmail            = "admin@vyleramove.com"
	DefaultPassword         = "password123"
	DefaultArtifactPath     = "verification/efficiency_dashboard.png"
	DefaultEmailSelector    = "input[name='email']"
	DefaultPasswordSelector = "input[name='password']"
	DefaultSubmitSelector   = "button[type='submit']"

	// ConfigFileEnv names the optional YAML file applied before the environment.
	ConfigFileEnv = "VERIFY_CONFIG"
)

// Config is the named form of every constant a verification run depends on
type Config struct {
	TargetURL    string `yaml:"target_url"`
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	ArtifactPath string `yaml:"artifact_path"`

	EmailSelector    string `yaml:"email_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`

	// NavigateTimeout bounds the initial navigation request.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	// SettleTimeout bounds the wait for redirects and rendering after navigation.
	SettleTimeout time.Duration `yaml:"settle_timeout"`
	// SettleQuiet is how long URL, title and ready state must hold still
	// before the page counts as settled. Zero means half of SettleTimeout.
	SettleQuiet time.Duration `yaml:"settle_quiet"`
	// LoginTimeout bounds filling the form and waiting to leave the login page.
	LoginTimeout time.Duration `yaml:"login_timeout"`
	// CaptureTimeout bounds the screenshot.
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`

	Browser BrowserConfig `yaml:"browser"`
}

// BrowserConfig configures how the headless browser is obtained
type BrowserConfig struct {
	Bin            string `yaml:"bin"`
	RemoteURL      string `yaml:"remote_url"`
	Headless       bool   `yaml:"headless"`
	Stealth        bool   `yaml:"stealth"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// Default returns the local development configuration
func Default() Config {
	return Config{
		TargetURL:        DefaultTargetURL,
		Email:            DefaultEmail,
		Password:         DefaultPassword,
		ArtifactPath:     DefaultArtifactPath,
		EmailSelector:    DefaultEmailSelector,
		PasswordSelector: DefaultPasswordSelector,
		SubmitSelector:   DefaultSubmitSelector,
		NavigateTimeout:  30 * time.Second,
		SettleTimeout:    3 * time.Second,
		LoginTimeout:     5 * time.Second,
		CaptureTimeout:   30 * time.Second,
		PollInterval:     250 * time.Millisecond,
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
	}
}

// envOverrides mirrors Config for the environment; nil means unset
type envOverrides struct {
	TargetURL        *string        `envconfig:"VERIFY_URL"`
	Email            *string        `envconfig:"VERIFY_EMAIL"`
	Password         *string        `envconfig:"VERIFY_PASSWORD"`
	ArtifactPath     *string        `envconfig:"VERIFY_ARTIFACT_PATH"`
	EmailSelector    *string        `envconfig:"VERIFY_EMAIL_SELECTOR"`
	PasswordSelector *string        `envconfig:"VERIFY_PASSWORD_SELECTOR"`
	SubmitSelector   *string        `envconfig:"VERIFY_SUBMIT_SELECTOR"`
	NavigateTimeout  *time.Duration `envconfig:"VERIFY_NAVIGATE_TIMEOUT"`
	SettleTimeout    *time.Duration `envconfig:"VERIFY_SETTLE_TIMEOUT"`
	SettleQuiet      *time.Duration `envconfig:"VERIFY_SETTLE_QUIET"`
	LoginTimeout     *time.Duration `envconfig:"VERIFY_LOGIN_TIMEOUT"`
	CaptureTimeout   *time.Duration `envconfig:"VERIFY_CAPTURE_TIMEOUT"`
	PollInterval     *time.Duration `envconfig:"VERIFY_POLL_INTERVAL"`
	Headless         *bool          `envconfig:"VERIFY_HEADLESS"`
	Stealth          *bool          `envconfig:"VERIFY_STEALTH"`
	ViewportWidth    *int           `envconfig:"VERIFY_VIEWPORT_WIDTH"`
	ViewportHeight   *int           `envconfig:"VERIFY_VIEWPORT_HEIGHT"`
	ChromeBin        *string        `envconfig:"CHROME_BIN"`
	ChromeRemoteURL  *string        `envconfig:"CHROME_REMOTE_URL"`
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order. lookup is usually os.LookupEnv.
func Load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(ConfigFileEnv); ok && path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	var env envOverrides
	if err := envconfig.Process("", &env, lookup); err != nil {
		return cfg, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg = cfg.apply(env)

	return cfg, cfg.Validate()
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) apply(env envOverrides) Config {
	setString(&c.TargetURL, env.TargetURL)
	setString(&c.Email, env.Email)
	setString(&c.Password, env.Password)
	setString(&c.ArtifactPath, env.ArtifactPath)
	setString(&c.EmailSelector, env.EmailSelector)
	setString(&c.PasswordSelector, env.PasswordSelector)
	setString(&c.SubmitSelector, env.SubmitSelector)
	setString(&c.Browser.Bin, env.ChromeBin)
	setString(&c.Browser.RemoteURL, env.ChromeRemoteURL)

	if env.NavigateTimeout != nil {
		c.NavigateTimeout = *env.NavigateTimeout
	}
	if env.SettleTimeout != nil {
		c.SettleTimeout = *env.SettleTimeout
	}
	if env.SettleQuiet != nil {
		c.SettleQuiet = *env.SettleQuiet
	}
	if env.LoginTimeout != nil {
		c.LoginTimeout = *env.LoginTimeout
	}
	if env.CaptureTimeout != nil {
		c.CaptureTimeout = *env.CaptureTimeout
	}
	if env.PollInterval != nil {
		c.PollInterval = *env.PollInterval
	}
	if env.Headless != nil {
		c.Browser.Headless = *env.Headless
	}
	if env.Stealth != nil {
		c.Browser.Stealth = *env.Stealth
	}
	if env.ViewportWidth != nil {
		c.Browser.ViewportWidth = *env.ViewportWidth
	}
	if env.ViewportHeight != nil {
		c.Browser.ViewportHeight = *env.ViewportHeight
	}
	return c
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects configurations a run cannot start with
func (c Config) Validate() error {
	var errs []error

	if c.TargetURL == "" {
		errs = append(errs, errors.New("target url is required"))
	} else if u, err := url.Parse(c.TargetURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid target url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("target url must be http or https, got %q", u.Scheme))
	}

	if c.ArtifactPath == "" {
		errs = append(errs, errors.New("artifact path is required"))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"navigate_timeout", c.NavigateTimeout},
		{"settle_timeout", c.SettleTimeout},
		{"login_timeout", c.LoginTimeout},
		{"capture_timeout", c.CaptureTimeout},
		{"poll_interval", c.PollInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}

	if c.SettleQuiet < 0 {
		errs = append(errs, errors.New("settle_quiet must not be negative"))
	} else if c.SettleQuiet > c.SettleTimeout {
		errs = append(errs, fmt.Errorf("settle_quiet %s exceeds settle_timeout %s", c.SettleQuiet, c.SettleTimeout))
	}

	return errors.Join(errs...)
}

// SettleQuietPeriod is the effective quiet window for settling
func (c Config) SettleQuietPeriod() time.Duration {
	if c.SettleQuiet > 0 {
		return c.SettleQuiet
	}
	return c.SettleTimeout / 2
}

// RunBudget is the longest a whole run may take
func (c Config) RunBudget() time.Duration {
	return c.NavigateTimeout + c.SettleTimeout + c.LoginTimeout + c.CaptureTimeout
}

// LauncherOptions converts the browser settings for the rod launcher
func (c Config) LauncherOptions() browser.Options {
	return browser.Options{
		Bin:            c.Browser.Bin,
		RemoteURL:      c.Browser.RemoteURL,
		Headless:       c.Browser.Headless,
		Stealth:        c.Browser.Stealth,
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
	}
}
