package workspace

import "github.com/zhubert/eve/model"

// AllocatePort returns the smallest base + k·increment (k ≥ 0) not in used.
// Non-positive base or increment fall back to the defaults.
func AllocatePort(used []int, base, increment int) int {
	if base <= 0 {
		base = model.DefaultPortBase
	}
	if increment <= 0 {
		increment = model.DefaultPortIncrement
	}

	taken := make(map[int]bool, len(used))
	for _, p := range used {
		taken[p] = true
	}

	port := base
	for taken[port] {
		port += increment
	}
	return port
}

// usedPorts collects the ports recorded on workspaces. Archived workspaces
// keep theirs.
func usedPorts(workspaces []*model.Workspace) []int {
	ports := make([]int, 0, len(workspaces))
	for _, ws := range workspaces {
		if ws.AllocatedPort > 0 {
			ports = append(ports, ws.AllocatedPort)
		}
	}
	return ports
}
