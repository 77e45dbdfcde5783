// Package preflight validates the host before a session launches editors.
// Editors are expensive to start; failing on a missing binary or a starved
// ulimit up front beats a half-initialized fleet.
package preflight

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Check is the outcome of one validation.
type Check struct {
	Name     string
	Required int // threshold, when the check is numeric
	Actual   int
	Passed   bool
	Warning  bool // passed, but worth a look
	Message  string
}

// Result collects all checks for one session.
type Result struct {
	Checks []Check
	Passed bool
}

func (c Check) mark() string {
	switch {
	case !c.Passed:
		return "✗"
	case c.Warning:
		return "⚠"
	default:
		return "✓"
	}
}

// String renders one check as a report line.
func (c Check) String() string {
	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available, %d required", c.mark(), c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", c.mark(), c.Name, c.Message)
}

// Params are the session settings the checks validate against.
type Params struct {
	Target      string // editor binary
	Project     string // project file
	Workers     int    // max concurrent editor instances
	BasePort    int
	ScratchRoot string
}

// RunAll executes every preflight check.
func RunAll(p Params) *Result {
	result := &Result{Passed: true}
	for _, c := range []Check{
		checkTarget(p.Target),
		checkProject(p.Project),
		checkFileDescriptors(p.Workers),
		checkProcessLimit(p.Workers),
		checkPortRange(p.BasePort, p.Workers),
		checkScratchRoot(p.ScratchRoot),
	} {
		result.Checks = append(result.Checks, c)
		result.Passed = result.Passed && c.Passed
	}
	return result
}

func failed(name, format string, args ...any) Check {
	return Check{Name: name, Message: fmt.Sprintf(format, args...)}
}

func passed(name, format string, args ...any) Check {
	return Check{Name: name, Passed: true, Message: fmt.Sprintf(format, args...)}
}

func warned(name, format string, args ...any) Check {
	return Check{Name: name, Passed: true, Warning: true, Message: fmt.Sprintf(format, args...)}
}

// checkTarget verifies the editor binary exists and is executable.
func checkTarget(path string) Check {
	const name = "editor_binary"
	if path == "" {
		return failed(name, "no target configured")
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return failed(name, "not found at %s: %v", path, err)
	case info.IsDir():
		return failed(name, "%s is a directory", path)
	case info.Mode()&0o111 == 0:
		return failed(name, "%s is not executable", path)
	}
	return passed(name, "found at %s", path)
}

// checkProject verifies the project file exists. An unset project is a
// warning only; some suites run editor-only scenarios.
func checkProject(path string) Check {
	const name = "project_file"
	if path == "" {
		return warned(name, "no project file configured")
	}
	if _, err := os.Stat(path); err != nil {
		return failed(name, "not found at %s: %v", path, err)
	}
	return passed(name, "found at %s", path)
}

// checkFileDescriptors sizes the fd budget for the fleet. Editors hold many
// fds open (assets, shader caches, sockets, pipes) on top of session
// overhead for metrics, artifacts, and logging.
func checkFileDescriptors(workers int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	required := workers*64 + 100
	actual := int(limit.Cur)
	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d, need %d for %d workers", actual, required, workers),
	}
}

// checkProcessLimit sizes the process budget. RLIMIT_NPROC is not exposed
// through Go's syscall package, so the value comes from /proc/self/limits.
// Each editor spawns helper processes and dozens of threads.
func checkProcessLimit(workers int) Check {
	const name = "process_limit"
	required := workers*16 + 50

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		return warned(name, "unable to check (non-Linux or restricted)")
	}

	actual := maxProcesses(string(data))
	if actual == 0 {
		return warned(name, "unable to determine (assuming OK)")
	}
	return Check{
		Name:     name,
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d, need %d", actual, required),
	}
}

// maxProcesses extracts the soft "Max processes" limit from
// /proc/self/limits content. Returns 0 when the line is absent or unparsable.
func maxProcesses(limits string) int {
	sc := bufio.NewScanner(strings.NewReader(limits))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[3] == "unlimited" {
			return 1 << 20
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// checkPortRange verifies the worker port block fits below the port ceiling
// and warns when it overlaps the kernel's ephemeral range.
func checkPortRange(basePort, workers int) Check {
	const name = "port_range"
	if basePort <= 0 || basePort+workers > 65535 {
		return failed(name, "base port %d with %d workers exceeds 65535", basePort, workers)
	}

	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return warned(name, "unable to read ephemeral port range (non-Linux?)")
	}
	var low, high int
	fmt.Sscanf(string(data), "%d %d", &low, &high)

	c := passed(name, "%d-%d (ephemeral %d-%d)", basePort, basePort+workers-1, low, high)
	c.Warning = basePort+workers > low && basePort < high
	return c
}

// checkScratchRoot verifies the scratch root is (or can be made) writable.
func checkScratchRoot(root string) Check {
	const name = "scratch_root"
	if root == "" {
		return failed(name, "no scratch root configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return failed(name, "cannot create %s: %v", root, err)
	}
	probe, err := os.CreateTemp(root, "preflight-*")
	if err != nil {
		return failed(name, "%s not writable: %v", root, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return passed(name, "writable at %s", root)
}

// Format renders the check results as a terminal block, with a fix
// suggestion under every failure.
func (r *Result) Format() string {
	var b strings.Builder
	b.WriteString("Preflight checks:\n")
	for _, c := range r.Checks {
		b.WriteString(c.String())
		b.WriteString("\n")
		if !c.Passed {
			fmt.Fprintf(&b, "    Fix: %s\n", suggestFix(c.Name))
		}
	}
	return b.String()
}

func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "editor_binary":
		return "point --target at the editor binary (chmod +x if needed)"
	case "project_file":
		return "point --project at the project file"
	case "port_range":
		return "lower --base-port or reduce worker count"
	case "scratch_root":
		return "choose a writable --scratch-root"
	default:
		return "see documentation"
	}
}
