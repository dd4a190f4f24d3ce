//go:build windows

package runner

import "os/exec"

// isolate is a no-op on Windows; cancellation kills only the direct child.
func isolate(cmd *exec.Cmd) {}
