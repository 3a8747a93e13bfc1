//go:build !darwin

package inject

// NewTyper returns nil: without a unicode-capable synthetic typer the
// injector uses the clipboard path.
func NewTyper() Typer { return nil }
