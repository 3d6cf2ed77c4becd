package daemon

import (
	"os"
	"testing"
)

func TestStart_WritesPIDAndState(t *testing.T) {
	d := New(t.TempDir(), "1.2.3")

	if err := d.Start("localhost", 8088); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Cleanup()

	if !d.IsRunning() {
		t.Fatal("expected IsRunning to be true right after Start")
	}

	status := d.Status()
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Version != "1.2.3" || status.ServerHost != "localhost" || status.ServerPort != 8088 {
		t.Fatalf("status missing recorded fields: %+v", status)
	}
}

func TestStart_RejectsSecondStartWhileRunning(t *testing.T) {
	d := New(t.TempDir(), "1.0.0")
	if err := d.Start("localhost", 8088); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Cleanup()

	if err := d.Start("localhost", 8089); err == nil {
		t.Fatal("expected a second Start to fail while the first is still running")
	}
}

func TestStatus_StalePIDFileIsCleanedUp(t *testing.T) {
	d := New(t.TempDir(), "1.0.0")
	if err := os.WriteFile(d.PIDPath(), []byte("999999999"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := d.WriteState(&State{PID: 999999999}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	status := d.Status()
	if status.Running {
		t.Fatal("expected a nonexistent PID to report not running")
	}
	if _, err := os.Stat(d.PIDPath()); !os.IsNotExist(err) {
		t.Fatal("expected the stale PID file to be removed")
	}
}

func TestStop_NotRunningReturnsError(t *testing.T) {
	d := New(t.TempDir(), "1.0.0")
	if err := d.Stop(); err == nil {
		t.Fatal("expected Stop to fail when no PID file exists")
	}
}

func TestCleanup_RemovesPIDAndStateFiles(t *testing.T) {
	d := New(t.TempDir(), "1.0.0")
	if err := d.Start("localhost", 8088); err != nil {
		t.Fatalf("Start: %v", err)
	}

	d.Cleanup()

	if _, err := os.Stat(d.PIDPath()); !os.IsNotExist(err) {
		t.Fatal("expected PID file to be removed by Cleanup")
	}
	if _, err := os.Stat(d.StatePath()); !os.IsNotExist(err) {
		t.Fatal("expected state file to be removed by Cleanup")
	}
}
