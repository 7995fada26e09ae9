package daemon

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// firstChild returns the PID of the first child of pid. Under valgrind the
// wrapper execs the daemon in place, but strace forks it, so signals have to
// go to the child to reach the daemon itself.
func firstChild(pid int) (int, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, fmt.Errorf("process %d not found: %w", pid, err)
	}

	children, err := p.Children()
	if err != nil {
		return 0, fmt.Errorf("listing children of %d: %w", pid, err)
	}
	if len(children) == 0 {
		return 0, fmt.Errorf("process %d has no children", pid)
	}
	return int(children[0].Pid), nil
}
