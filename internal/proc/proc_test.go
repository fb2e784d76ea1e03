package proc

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"
)

func startSleep(t *testing.T) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestAlive(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		want bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"self", os.Getpid(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Alive(tt.pid); got != tt.want {
				t.Errorf("Alive(%d) = %v, want %v", tt.pid, got, tt.want)
			}
		})
	}
}

func TestTree_DeadProcess(t *testing.T) {
	if tree := Tree(context.Background(), 0); tree != nil {
		t.Errorf("Tree(0) = %v, want nil", tree)
	}
}

func TestWaitExit_AlreadyGone(t *testing.T) {
	if !WaitExit(context.Background(), 0, time.Second) {
		t.Error("WaitExit for pid 0 should return true")
	}
}

func TestWaitExit_Timeout(t *testing.T) {
	cmd := startSleep(t)

	start := time.Now()
	if WaitExit(context.Background(), cmd.Process.Pid, 100*time.Millisecond) {
		t.Error("WaitExit should report a live process after timeout")
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("WaitExit returned before the timeout")
	}
}

func TestTerminate(t *testing.T) {
	cmd := startSleep(t)
	pid := cmd.Process.Pid

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	if err := Terminate(context.Background(), pid, time.Second); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process still running after Terminate")
	}
}

func TestTerminate_DeadProcessIsNotAnError(t *testing.T) {
	if err := Terminate(context.Background(), 0, time.Millisecond); err != nil {
		t.Errorf("Terminate(0) = %v, want nil", err)
	}
}

func TestAlive_ZombieCountsAsExited(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}

	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start true: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Wait() })

	// Not reaped yet, so the exited child stays a zombie.
	deadline := time.Now().Add(2 * time.Second)
	for Alive(cmd.Process.Pid) {
		if time.Now().After(deadline) {
			t.Fatal("exited child still reported alive")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIdentity(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}

	self, ok := Identity(os.Getpid())
	if !ok || self == "" {
		t.Fatalf("Identity(self) = %q, %v", self, ok)
	}
	again, _ := Identity(os.Getpid())
	if again != self {
		t.Errorf("Identity changed between calls: %q then %q", self, again)
	}

	cmd := startSleep(t)
	if _, ok := Identity(cmd.Process.Pid); !ok {
		t.Fatal("Identity of a running child failed")
	}

	if _, ok := Identity(0); ok {
		t.Error("Identity(0) should fail")
	}
}

func TestCommandLine(t *testing.T) {
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("procfs not available")
	}

	cmd := startSleep(t)
	got := CommandLine(cmd.Process.Pid)
	if len(got) != 2 || got[0] != "sleep" || got[1] != "30" {
		t.Errorf("CommandLine = %q, want [sleep 30]", got)
	}
	if CommandLine(0) != nil {
		t.Error("CommandLine(0) should be nil")
	}
}
