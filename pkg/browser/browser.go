// Package browser drives a headless Chrome through go-rod.
//
// The Launcher/Session/Page interfaces are what the verifier depends on;
// RodLauncher is the production implementation.
package browser

import (
	"context"
)

// Launcher acquires browser sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser process with one page. Close must release the
// browser process and is safe to call more than once.
type Session interface {
	Page() Page
	Close() error
}

// Page is the subset of page operations a verification needs.
// Every call is bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Info(ctx context.Context) (PageInfo, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// PageInfo is a snapshot of the page state
type PageInfo struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	ReadyState string `json:"ready_state"`
}

// Loaded reports whether the document finished loading
func (p PageInfo) Loaded() bool {
	return p.ReadyState == "complete"
}
