// Package appctx reports what application currently has keyboard
// focus. The correction stage uses it to hint the model about the
// injection target.
package appctx

// Snapshot describes the focused application at a point in time.
// Fields are best-effort; empty means unknown.
type Snapshot struct {
	AppName     string
	BundleID    string
	FocusedRole string
	WindowTitle string
}

type Provider interface {
	// Current returns the focused-app snapshot. Never blocks for long;
	// on failure it returns an empty snapshot and the error.
	Current() (Snapshot, error)
}
