//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The hotkey tap backend needs the process main thread on darwin and
// windows; run() itself executes on a worker goroutine.
func main() {
	mainthread.Init(run)
}
