// Package memprobe reports the memory usage of the current process in MB.
package memprobe

import (
	"bufio"
	"bytes"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Probe reports process memory usage
type Probe interface {
	CurrentMB() int64
}

// Process probes the running process. It reads resident plus swapped memory
// from /proc/self/status where available, then falls back to the peak
// resident size from getrusage, then to the Go runtime's own accounting.
type Process struct {
	statusPath string
}

// New creates a Process probe
func New() *Process {
	return &Process{statusPath: "/proc/self/status"}
}

// CurrentMB returns memory usage in MB, or 0 if nothing could be read
func (p *Process) CurrentMB() int64 {
	if kb, ok := readStatusKB(p.statusPath); ok {
		return kb / 1024
	}
	if b, ok := maxRSSBytes(); ok {
		return b / (1024 * 1024)
	}
	return runtimeMB()
}

// readStatusKB sums VmRSS and VmSwap from a proc status file
func readStatusKB(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return parseStatus(data)
}

func parseStatus(data []byte) (int64, bool) {
	var total int64
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || (key != "VmRSS" && key != "VmSwap") {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		total += kb
		found = true
	}
	return total, found
}

func runtimeMB() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys / (1024 * 1024))
}

// Static always reports the same value
type Static int64

func (s Static) CurrentMB() int64 { return int64(s) }
