// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package supervisor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// sleeperScript builds an executable that blocks until signalled.
func sleeperScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sleeper")
	script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	return path
}

func TestDeclareDuplicateRejected(t *testing.T) {
	s := New(false, nil)
	if err := s.Declare("rib", "/bin/true", nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}
	if err := s.Declare("rib", "/bin/false", nil); err == nil {
		t.Fatalf("duplicate declare unexpectedly accepted")
	}
}

func TestUndeclaredModuleIsNoExist(t *testing.T) {
	s := New(false, nil)
	if st := s.Status("ghost"); st != NoExist {
		t.Fatalf("Unexpected status: %s", st)
	}
}

func TestDryRunStartDoesNotSpawn(t *testing.T) {
	s := New(false, nil)
	if err := s.Declare("rib", "/nonexistent/binary", nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}
	ok := false
	s.Start("rib", true, true, func(success bool) { ok = success })
	if !ok {
		t.Fatalf("dry-run start reported failure")
	}
	if st := s.Status("rib"); st != Startup {
		t.Fatalf("Unexpected status after dry-run start: %s", st)
	}
}

func TestStartSpawnFailureReported(t *testing.T) {
	s := New(false, nil)
	if err := s.Declare("rib", "/nonexistent/binary", nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}
	ok := true
	s.Start("rib", true, false, func(success bool) { ok = success })
	if ok {
		t.Fatalf("spawn of missing binary reported success")
	}
	if st := s.Status("rib"); st != Failed {
		t.Fatalf("Unexpected status: %s", st)
	}
}

func TestStartAndKill(t *testing.T) {
	s := New(false, nil)
	s.ShutdownGrace = 2 * time.Second
	if err := s.Declare("rib", sleeperScript(t), nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}

	ok := false
	s.Start("rib", true, false, func(success bool) { ok = success })
	if !ok {
		t.Fatalf("start reported failure")
	}
	if st := s.Status("rib"); st != Startup {
		t.Fatalf("Unexpected status after start: %s", st)
	}
	s.MarkRunning("rib")
	if st := s.Status("rib"); st != Running {
		t.Fatalf("Unexpected status after MarkRunning: %s", st)
	}

	done := make(chan struct{})
	s.Kill("rib", func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("kill never completed")
	}
	if st := s.Status("rib"); st != Stopped {
		t.Fatalf("Unexpected status after kill: %s", st)
	}
	if !s.IsShutdownCompleted() {
		t.Fatalf("shutdown not reported complete")
	}
}

func TestStatusChangeCallbackFires(t *testing.T) {
	s := New(false, nil)
	var mu sync.Mutex
	var seen []Status
	s.StatusChanged = func(name string, st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	}
	if err := s.Declare("rib", "/nonexistent/binary", nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}
	s.Start("rib", true, true, func(bool) {})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("status callback never fired")
		case <-time.After(time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if seen[0] != Startup {
		t.Fatalf("Unexpected first transition: %s", seen[0])
	}
}

func TestShutdownReversesDeclarationOrder(t *testing.T) {
	s := New(false, nil)
	for _, name := range []string{"c", "b", "a"} {
		if err := s.Declare(name, "/bin/true", nil); err != nil {
			t.Fatalf("Unexpected declare failure: %v", err)
		}
		s.Start(name, true, true, func(bool) {})
	}
	s.Shutdown()
	if !s.IsShutdownCompleted() {
		t.Fatalf("shutdown incomplete")
	}
	for _, name := range []string{"a", "b", "c"} {
		if st := s.Status(name); st != Stopped {
			t.Fatalf("Unexpected status for %s: %s", name, st)
		}
	}
}

func TestRestartDisabledDuringCommit(t *testing.T) {
	s := New(true, nil)
	s.BeginCommit()
	// with a commit in flight, an unexpected exit must not restart
	path := filepath.Join(t.TempDir(), "quick")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	if err := s.Declare("quick", path, nil); err != nil {
		t.Fatalf("Unexpected declare failure: %v", err)
	}
	s.Start("quick", true, false, func(bool) {})

	deadline := time.After(5 * time.Second)
	for s.Status("quick") != Failed {
		select {
		case <-deadline:
			t.Fatalf("module never reached FAILED, status %s", s.Status("quick"))
		case <-time.After(time.Millisecond):
		}
	}
	// give any (incorrect) restart a moment to happen
	time.Sleep(50 * time.Millisecond)
	if st := s.Status("quick"); st != Failed {
		t.Fatalf("module restarted during commit: %s", st)
	}
	s.EndCommit()
}
