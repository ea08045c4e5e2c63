// Package verifier runs a dashboard verification: open the dashboard in a
// headless browser, sign in if redirected to a login page, and save a
// full-page screenshot. Every phase is reported as a models.Attempt; Run
// itself never fails.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/utils"

	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/browser"
	"dev/bravebird/dashboard-verify/pkg/config"
	"dev/bravebird/dashboard-verify/pkg/models"
)

// Logger is a key/value logger. *slog.Logger and the Temporal SDK logger
// both satisfy it.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Verifier drives one browser session through navigate, login and capture
type Verifier struct {
	cfg      config.Config
	launcher browser.Launcher
	store    *artifact.Store
	logger   Logger
	now      func() time.Time
}

// New creates a verifier
func New(cfg config.Config, launcher browser.Launcher, store *artifact.Store, logger Logger) *Verifier {
	return &Verifier{
		cfg:      cfg,
		launcher: launcher,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one verification. The browser session is closed before Run
// returns, whatever happened.
func (v *Verifier) Run(ctx context.Context, runID string) (result models.VerificationResult) {
	result = models.VerificationResult{
		RunID:      runID,
		TargetURL:  v.cfg.TargetURL,
		Navigation: models.SkippedAttempt(),
		Login:      models.SkippedAttempt(),
		Capture:    models.SkippedAttempt(),
		StartedAt:  v.now(),
	}
	defer func() {
		result.CompletedAt = v.now()
	}()

	v.logger.Info("Starting verification", "runID", runID)

	v.logger.Info("Launching browser")
	session, err := v.launcher.Launch(ctx)
	if err != nil {
		result.Navigation = v.failedAttempt(result.StartedAt, err)
		v.logger.Error("Error during verification", "error", err)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			v.logger.Warn("Failed to close browser", "error", err)
			return
		}
		v.logger.Debug("Browser closed")
	}()

	page := session.Page()

	v.logger.Info("Navigating", "url", v.cfg.TargetURL)
	var info browser.PageInfo
	result.Navigation = v.attempt(func() error {
		var err error
		info, err = v.navigate(ctx, page)
		return err
	})
	if result.Navigation.Failed() {
		v.logger.Error("Error during verification", "error", result.Navigation.Error)
		return result
	}
	result.FinalURL = info.URL
	result.PageTitle = info.Title

	if NeedsLogin(info.Title, info.URL) {
		result.LoginRequired = true
		v.logger.Info("Redirected to login, attempting to sign in", "url", info.URL, "title", info.Title)

		result.Login = v.attempt(func() error {
			after, err := v.login(ctx, page)
			if after.URL != "" {
				result.FinalURL = after.URL
				result.PageTitle = after.Title
			}
			return err
		})
		if result.Login.Failed() {
			v.logger.Warn("Login attempt failed", "error", result.Login.Error)
		}
	}

	v.logger.Info("Taking screenshot")
	result.Capture = v.attempt(func() error {
		return v.capture(ctx, page)
	})
	if result.Capture.Failed() {
		v.logger.Error("Error during verification", "error", result.Capture.Error)
		return result
	}
	result.ArtifactPath = v.cfg.ArtifactPath
	v.logger.Info("Screenshot saved", "path", v.cfg.ArtifactPath)

	if final, ok := v.readFinal(ctx, page); ok {
		result.FinalURL = final.URL
		result.PageTitle = final.Title
	}

	result.Verified = !result.Login.Failed() && !NeedsLogin(result.PageTitle, result.FinalURL)
	return result
}

func (v *Verifier) attempt(fn func() error) models.Attempt {
	start := v.now()
	if err := fn(); err != nil {
		return v.failedAttempt(start, err)
	}
	return models.Attempt{
		Status:    models.AttemptSucceeded,
		StartedAt: start,
		Duration:  v.now().Sub(start).Milliseconds(),
	}
}

func (v *Verifier) failedAttempt(start time.Time, err error) models.Attempt {
	return models.Attempt{
		Status:    models.AttemptFailed,
		Error:     err.Error(),
		StartedAt: start,
		Duration:  v.now().Sub(start).Milliseconds(),
	}
}

// navigate opens the target and waits for redirects and rendering to settle.
// A page that never settles is not an error; the last observed state is used.
func (v *Verifier) navigate(ctx context.Context, page browser.Page) (browser.PageInfo, error) {
	navCtx, cancel := context.WithTimeout(ctx, v.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Navigate(navCtx, v.cfg.TargetURL); err != nil {
		return browser.PageInfo{}, err
	}

	info, err := v.waitFor(ctx, page, v.cfg.SettleTimeout, v.settledFor(v.cfg.SettleQuietPeriod()))
	if err != nil {
		if info.URL == "" {
			return info, fmt.Errorf("failed to read page after navigation: %w", err)
		}
		v.logger.Warn("Page did not settle, continuing", "url", info.URL, "timeout", v.cfg.SettleTimeout)
	}
	return info, nil
}

// login fills the credentials, submits, and waits until the page is no
// longer a login page. The returned info is the last page state observed.
func (v *Verifier) login(ctx context.Context, page browser.Page) (browser.PageInfo, error) {
	loginCtx, cancel := context.WithTimeout(ctx, v.cfg.LoginTimeout)
	defer cancel()

	if err := page.Fill(loginCtx, v.cfg.EmailSelector, v.cfg.Email); err != nil {
		return browser.PageInfo{}, err
	}
	if err := page.Fill(loginCtx, v.cfg.PasswordSelector, v.cfg.Password); err != nil {
		return browser.PageInfo{}, err
	}
	if err := page.Click(loginCtx, v.cfg.SubmitSelector); err != nil {
		return browser.PageInfo{}, err
	}
	v.logger.Info("Submitted login form")

	info, err := v.waitFor(loginCtx, page, v.cfg.LoginTimeout, signedIn)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && info.URL != "" {
			return info, fmt.Errorf("still on login page after %s: %s", v.cfg.LoginTimeout, info.URL)
		}
		return info, fmt.Errorf("failed to confirm login: %w", err)
	}
	return info, nil
}

func (v *Verifier) capture(ctx context.Context, page browser.Page) error {
	capCtx, cancel := context.WithTimeout(ctx, v.cfg.CaptureTimeout)
	defer cancel()

	data, err := page.Screenshot(capCtx, true)
	if err != nil {
		return err
	}
	return v.store.Save(v.cfg.ArtifactPath, data)
}

// readFinal reads the page state the verdict is based on
func (v *Verifier) readFinal(ctx context.Context, page browser.Page) (browser.PageInfo, bool) {
	readCtx, cancel := context.WithTimeout(ctx, v.cfg.CaptureTimeout)
	defer cancel()

	info, err := page.Info(readCtx)
	if err != nil || info.URL == "" {
		v.logger.Debug("Could not re-read page after capture", "error", err)
		return info, false
	}
	return info, true
}

// readyFunc decides from the previous (nil on the first poll) and current
// page state whether waiting is over
type readyFunc func(prev *browser.PageInfo, cur browser.PageInfo) bool

// settledFor waits for a loaded document whose URL, title and ready state
// held still for quiet. Redirects fired by scripts after load restart the
// window.
func (v *Verifier) settledFor(quiet time.Duration) readyFunc {
	var since time.Time
	return func(prev *browser.PageInfo, cur browser.PageInfo) bool {
		now := v.now()
		if prev == nil || *prev != cur || !cur.Loaded() {
			since = now
			return false
		}
		return now.Sub(since) >= quiet
	}
}

func signedIn(_ *browser.PageInfo, cur browser.PageInfo) bool {
	return cur.Loaded() && !NeedsLogin(cur.Title, cur.URL)
}

// waitFor polls page state every PollInterval until ready holds or timeout
// elapses. On timeout it returns the last state read with the context error.
// Read errors while the page is mid-navigation are retried.
func (v *Verifier) waitFor(ctx context.Context, page browser.Page, timeout time.Duration, ready readyFunc) (browser.PageInfo, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last *browser.PageInfo
	var readErr error

	interval := v.cfg.PollInterval
	sleeper := utils.BackoffSleeper(interval, interval, func(d time.Duration) time.Duration { return d })

	err := utils.Retry(waitCtx, sleeper, func() (bool, error) {
		cur, err := page.Info(waitCtx)
		if err != nil {
			readErr = err
			return false, nil
		}
		done := ready(last, cur)
		last = &cur
		return done, nil
	})

	if last == nil {
		if readErr != nil {
			return browser.PageInfo{}, fmt.Errorf("%w: %v", err, readErr)
		}
		return browser.PageInfo{}, err
	}
	return *last, err
}
