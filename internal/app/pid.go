// Package app runs the gateway process and tracks it through a pid file.
package app

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// GatewayPID returns the pid of the gateway serving dataDir, or 0 if none is alive.
func GatewayPID(dataDir string) int {
	return ReadPID(PIDFile(dataDir))
}

// ReadPID reads a PID from the given file and returns it if the process is alive, or 0 otherwise.
func ReadPID(pidFile string) int {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}

	if !alive(pid) {
		return 0
	}
	return pid
}

// FindProcessPID returns the pid of the first process whose command line
// matches name, or 0. pet-server is started outside this tool, so this is the
// only way to find it.
func FindProcessPID(name string) int {
	out, err := exec.Command("pgrep", "-f", name).Output()
	if err != nil {
		return 0
	}

	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err == nil && pid != os.Getpid() {
			return pid
		}
	}
	return 0
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
