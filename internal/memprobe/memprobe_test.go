package memprobe

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int64
		wantOK bool
	}{
		{"rss and swap", "Name:\ttask-orch\nVmRSS:\t  204800 kB\nVmSwap:\t    1024 kB\n", 205824, true},
		{"rss only", "VmRSS:\t2048 kB\n", 2048, true},
		{"missing", "Name:\ttask-orch\nThreads:\t4\n", 0, false},
		{"garbage", "VmRSS:\tlots kB\n", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseStatus([]byte(tt.input))
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseStatus = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestProcess_StatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	if err := os.WriteFile(path, []byte("VmRSS:\t307200 kB\nVmSwap:\t0 kB\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p := &Process{statusPath: path}
	if got := p.CurrentMB(); got != 300 {
		t.Errorf("CurrentMB = %d, want 300", got)
	}
}

func TestProcess_Fallback(t *testing.T) {
	p := &Process{statusPath: filepath.Join(t.TempDir(), "missing")}
	if got := p.CurrentMB(); got < 0 {
		t.Errorf("CurrentMB = %d, must not be negative", got)
	}
}

func TestStatic(t *testing.T) {
	var p Probe = Static(42)
	if p.CurrentMB() != 42 {
		t.Error("Static should report its value")
	}
}
