//go:build windows

package runner

import "os/exec"

// configureKill keeps the default cancellation, which kills the child
// process only. Pipes held by its descendants are closed after waitDelay.
func configureKill(cmd *exec.Cmd) {}
