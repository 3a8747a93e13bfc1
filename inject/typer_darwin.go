package inject

import (
	"fmt"
	"os/exec"
	"strings"
)

// OsascriptTyper types through System Events keystroke, which handles
// arbitrary unicode. Requires the accessibility permission the daemon
// already holds for the input tap.
type OsascriptTyper struct{}

// NewTyper returns the platform typer.
func NewTyper() Typer { return OsascriptTyper{} }

func (OsascriptTyper) TypeText(text string) error {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript keystroke: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
