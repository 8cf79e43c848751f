package cgroup

const (
	// systemd mounted cgroup v1 hierarchies
	DefaultBasePath = "/sys/fs/cgroup"

	// PortoRoot is the fixed subtree component owned by the supervisor
	// under every controller mount
	PortoRoot = "porto"

	cgroupProcs = "cgroup.procs"
	cgroupTasks = "tasks"

	filePerm = 0644
	dirPerm  = 0755

	// controller names
	Freezer = "freezer"
	CPUAcct = "cpuacct"
	Memory  = "memory"

	freezerState = "freezer.state"
	frozen       = "FROZEN"
	thawed       = "THAWED"

	cpuacctUsage    = "cpuacct.usage"
	memoryUsage     = "memory.usage_in_bytes"
	memoryLimit     = "memory.limit_in_bytes"
	memoryLowLimit  = "memory.low_limit_in_bytes"
	memoryHierarchy = "memory.use_hierarchy"
)
