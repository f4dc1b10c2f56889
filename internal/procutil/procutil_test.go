package procutil

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"
)

func TestAliveRejectsBogusPid(t *testing.T) {
	if Alive(0, "/tmp/x") {
		t.Error("pid 0 must not resolve")
	}
	if Alive(-1, "/tmp/x") {
		t.Error("negative pid must not resolve")
	}
	// A pid far beyond the usual pid space.
	if Alive(1<<22, "/tmp/x") {
		t.Error("unallocated pid must not resolve")
	}
}

func TestAliveRequiresDataDirMatch(t *testing.T) {
	// The test binary is alive but was not launched against this data dir,
	// so the stale-pid correction path must report not running.
	pid := int32(os.Getpid())
	if Alive(pid, "/definitely/not/in/our/cmdline") {
		t.Error("live process without matching data dir counted as instance process")
	}
}

func TestLaunchAndTerminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a sleep binary")
	}

	pid, err := Launch("sleep", []string{"60"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := Terminate(ctx, pid); err != nil {
		t.Fatalf("terminate: %v", err)
	}
}

func TestTerminateGonePidIsNoop(t *testing.T) {
	ctx := context.Background()
	if err := Terminate(ctx, 1<<22); err != nil {
		t.Fatalf("terminate of non-existent pid: %v", err)
	}
}
