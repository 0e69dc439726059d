package mcp

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openWithDefaultApp hands a path to the host OS default-open mechanism.
func openWithDefaultApp(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch opener: %w", err)
	}
	// Detach: the opener owns the file from here.
	go func() { _ = cmd.Wait() }()
	return nil
}
