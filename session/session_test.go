// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package session_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/action"
	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/commit"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/rpc"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/session"
	"github.com/danos/rtrmgr/supervisor"
	"github.com/danos/rtrmgr/task"
)

const sessTmpl = `
system {
    %modinfo {
        provides system;
        path "/bin/sysmgr";
        status_method: xrl "sysmgr/common/0.1/get_status -> status:u32=$st, reason:txt=$reason";
    }
    hostname: text = "router";
    %update: xrl "sysmgr/sys/0.1/set_hostname?name:txt=$(@.hostname)";
}
`

type okBus struct{}

func (okBus) Call(_ context.Context, req bus.Request) (*bus.Reply, error) {
	if req.Method == "get_status" {
		return &bus.Reply{Atoms: []bus.Atom{
			{Name: "status", Value: strconv.Itoa(int(task.StatusReady))},
			{Name: "reason", Value: ""},
		}}, nil
	}
	return &bus.Reply{}, nil
}

type testEnv struct {
	st   *schema.Tree
	smgr *session.SessionMgr
	cmgr *session.CommitMgr
	ctx  *rtrmgr.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "s.tmpl"), []byte(sessTmpl), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	st, err := schema.Load(dir, nil)
	if err != nil {
		t.Fatalf("Unexpected schema load failure: %v", err)
	}
	running := config.New(st)
	sup := supervisor.New(false, nil)
	runner := action.NewRunner(okBus{}, running)
	mgr := task.NewManager(sup, runner, false, nil)
	engine := commit.NewEngine(st, mgr, nil)
	return &testEnv{
		st:   st,
		smgr: session.NewSessionMgrCustomLog(nil),
		cmgr: session.NewCommitMgr(engine, running, nil),
		ctx:  &rtrmgr.Context{User: "alice", Uid: 1000},
	}
}

func (e *testEnv) newSession(t *testing.T, sid string) *session.Session {
	t.Helper()
	sess, err := e.smgr.Create(e.ctx, sid, e.cmgr, e.st)
	if sess == nil || err != nil {
		t.Fatalf("Unexpected nil session, err: %v", err)
	}
	return sess
}

func TestSessionSetGetCommit(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if err := sess.Set(e.ctx, path, "core1", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if v, ok := sess.Get(e.ctx, path); !ok || v != "core1" {
		t.Fatalf("Unexpected get: %q %v", v, ok)
	}
	if err := sess.Commit(e.ctx); err != nil {
		t.Fatalf("Unexpected commit failure: %v", err)
	}
	if err := sess.Discard(e.ctx); err != nil {
		t.Fatalf("Unexpected discard failure: %v", err)
	}
	if v, _ := sess.Get(e.ctx, path); v != "core1" {
		t.Fatalf("committed value lost after discard: %q", v)
	}
}

func TestSessionDiscardDropsProvisional(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if err := sess.Set(e.ctx, path, "scratch", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if err := sess.Discard(e.ctx); err != nil {
		t.Fatalf("Unexpected discard failure: %v", err)
	}
	if _, ok := sess.Get(e.ctx, path); ok {
		t.Fatalf("provisional value survived discard")
	}
}

func TestNewSessionSeesCommittedState(t *testing.T) {
	e := newTestEnv(t)
	s1 := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if err := s1.Set(e.ctx, path, "core1", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if err := s1.Commit(e.ctx); err != nil {
		t.Fatalf("Unexpected commit failure: %v", err)
	}

	s2 := e.newSession(t, "s2")
	if v, ok := s2.Get(e.ctx, path); !ok || v != "core1" {
		t.Fatalf("new session missing committed state: %q %v", v, ok)
	}
}

func TestLockNodeBlocksOtherModifier(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if err := sess.LockNode(e.ctx, path); err != nil {
		t.Fatalf("Unexpected lock failure: %v", err)
	}

	bob := &rtrmgr.Context{User: "bob", Uid: 1001}
	err := sess.Set(bob, path, "stolen", schema.OpSet)
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("Unexpected error: %v", err)
	}

	// the lock holder can still edit
	if err := sess.Set(e.ctx, path, "mine", schema.OpSet); err != nil {
		t.Fatalf("lock holder unexpectedly blocked: %v", err)
	}

	if err := sess.UnlockNode(e.ctx, path); err != nil {
		t.Fatalf("Unexpected unlock failure: %v", err)
	}
	if err := sess.Set(bob, path, "fine", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure after unlock: %v", err)
	}
}

func TestSessionShowAndSaveLoad(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if err := sess.Set(e.ctx, path, "core1", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if err := sess.Commit(e.ctx); err != nil {
		t.Fatalf("Unexpected commit failure: %v", err)
	}

	text, err := sess.Show(e.ctx)
	if err != nil || !strings.Contains(text, "hostname = core1") {
		t.Fatalf("Unexpected show output: %q, %v", text, err)
	}

	file := filepath.Join(t.TempDir(), "saved.config")
	if err := sess.Save(e.ctx, file); err != nil {
		t.Fatalf("Unexpected save failure: %v", err)
	}

	s2 := e.newSession(t, "s2")
	if err := s2.Set(e.ctx, path, "other", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if err := s2.Load(e.ctx, file); err != nil {
		t.Fatalf("Unexpected load failure: %v", err)
	}
	if v, ok := s2.Get(e.ctx, path); !ok || v != "core1" {
		t.Fatalf("loaded session has wrong hostname: %q %v", v, ok)
	}
}

func TestSessionMgrGetNonExistent(t *testing.T) {
	e := newTestEnv(t)
	sess, err := e.smgr.Get(e.ctx, "nope")
	if sess != nil || err == nil {
		t.Fatalf("Unexpectedly retrieved session: %v, err %v", sess, err)
	}
}

func TestSessionMgrCreateExisting(t *testing.T) {
	e := newTestEnv(t)
	e.newSession(t, "dup")
	sess, err := e.smgr.Create(e.ctx, "dup", e.cmgr, e.st)
	if sess != nil || err == nil {
		t.Fatalf("duplicate create unexpectedly succeeded")
	}
}

func TestSessionMgrDestroy(t *testing.T) {
	e := newTestEnv(t)
	e.newSession(t, "gone")
	if err := e.smgr.Destroy(e.ctx, "gone"); err != nil {
		t.Fatalf("Unexpected destroy failure: %v", err)
	}
	if _, err := e.smgr.Get(e.ctx, "gone"); err == nil {
		t.Fatalf("destroyed session still present")
	}
}

func TestNodeStatusTracksEdits(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	path := []string{"system", "hostname"}

	if st := sess.NodeStatus(e.ctx, path); st != rpc.UNCHANGED {
		t.Fatalf("Unexpected status for absent node: %s", st)
	}
	if err := sess.Set(e.ctx, path, "core1", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if st := sess.NodeStatus(e.ctx, path); st != rpc.ADDED {
		t.Fatalf("Unexpected status after set: %s", st)
	}
	if err := sess.Commit(e.ctx); err != nil {
		t.Fatalf("Unexpected commit failure: %v", err)
	}
	if st := sess.NodeStatus(e.ctx, path); st != rpc.UNCHANGED {
		t.Fatalf("Unexpected status after commit: %s", st)
	}
	if err := sess.Set(e.ctx, path, "core2", schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	if st := sess.NodeStatus(e.ctx, path); st != rpc.CHANGED {
		t.Fatalf("Unexpected status after change: %s", st)
	}
	if err := sess.Discard(e.ctx); err != nil {
		t.Fatalf("Unexpected discard failure: %v", err)
	}
	if err := sess.Delete(e.ctx, path); err != nil {
		t.Fatalf("Unexpected delete failure: %v", err)
	}
	if st := sess.NodeStatus(e.ctx, path); st != rpc.DELETED {
		t.Fatalf("Unexpected status after delete: %s", st)
	}
}

func TestDiffRendersProvisionalChanges(t *testing.T) {
	e := newTestEnv(t)
	sess := e.newSession(t, "s1")
	if err := sess.Set(e.ctx, []string{"system", "hostname"}, "core9",
		schema.OpSet); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	delta, deletion, err := sess.Diff(e.ctx)
	if err != nil {
		t.Fatalf("Unexpected diff failure: %v", err)
	}
	if !strings.Contains(delta, "core9") {
		t.Fatalf("delta missing change:\n%s", delta)
	}
	if strings.Contains(deletion, "hostname") {
		t.Fatalf("Unexpected deletion content:\n%s", deletion)
	}
}
