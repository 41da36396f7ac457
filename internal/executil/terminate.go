package executil

import "os/exec"

// KillTree terminates cmd and all of its descendants: graceful first, then
// forced after a short grace period. Safe on nil and never-started cmds.
func KillTree(cmd *exec.Cmd) {
	killProcessGroup(cmd)
}
