package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHeadlessWithoutBroker(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`
instance_id: test-headless
data_dir: %s
stimulus:
  id: stim-1
  duration_s: 60
`, dataDir))

	svc, err := NewService(path)
	if err != nil {
		t.Fatalf("a broker-less config is valid and must boot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	// With no broker the service must keep running, not die on connect.
	select {
	case err := <-errCh:
		t.Fatalf("headless run exited early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned an error on cancellation: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run never returned after cancellation")
	}

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := svc.Shutdown(sctx); err != nil {
		t.Fatalf("headless shutdown failed: %v", err)
	}
}

func TestHeadlessSessionLifecycle(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`
instance_id: test-headless
data_dir: %s
stimulus:
  id: stim-1
  duration_s: 60
capture:
  sample_period_ms: 20
  debounce_ms: 15
`, dataDir))

	svc, err := NewService(path)
	if err != nil {
		t.Fatal(err)
	}

	// Drive a session directly; with no emitter the notifier is absent and
	// transitions must still work.
	if err := svc.armSession("p-1"); err != nil {
		t.Fatalf("arm failed headless: %v", err)
	}
	if err := svc.startSession(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := svc.stopSession(false); err != nil {
		t.Fatal(err)
	}

	sess := svc.activeSession()
	if sess == nil {
		t.Fatal("expected the session to remain current")
	}
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session never finalized")
	}

	if err := svc.teardownSession(); err != nil {
		t.Fatal(err)
	}
}
