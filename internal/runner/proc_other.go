//go:build !unix

package runner

import "os/exec"

// configureProcess keeps the exec.CommandContext default of killing only
// the direct child.
func configureProcess(cmd *exec.Cmd) {}
