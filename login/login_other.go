//go:build !darwin

package login

import "errors"

var errUnsupported = errors.New("launch at login is only supported on macOS")

func Enabled() bool { return false }

func Enable() error { return errUnsupported }

func Disable() error { return errUnsupported }
