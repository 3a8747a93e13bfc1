package appctx

import (
	"fmt"
	"os/exec"
	"strings"
)

const frontmostScript = `tell application "System Events"
	set frontApp to first application process whose frontmost is true
	set appName to name of frontApp
	set bundleID to bundle identifier of frontApp
	set winTitle to ""
	set focusRole to ""
	try
		set winTitle to name of front window of frontApp
	end try
	try
		set focusRole to role description of (value of attribute "AXFocusedUIElement" of frontApp)
	end try
	return appName & linefeed & bundleID & linefeed & focusRole & linefeed & winTitle
end tell`

// SystemProvider reads the frontmost app through System Events.
type SystemProvider struct{}

func NewProvider() Provider { return SystemProvider{} }

func (SystemProvider) Current() (Snapshot, error) {
	out, err := exec.Command("osascript", "-e", frontmostScript).Output()
	if err != nil {
		return Snapshot{}, fmt.Errorf("frontmost app: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	snap := Snapshot{}
	if len(lines) > 0 {
		snap.AppName = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		snap.BundleID = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		snap.FocusedRole = strings.TrimSpace(lines[2])
	}
	if len(lines) > 3 {
		snap.WindowTitle = strings.TrimSpace(lines[3])
	}
	return snap, nil
}
