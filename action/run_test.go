// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package action_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danos/rtrmgr/action"
	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

const actionTmpl = `
interfaces {
    interface {
        @: text {
            mtu: uint32 = 1500;
        }
    }
}
`

func actionSchema(t *testing.T) *schema.Tree {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.tmpl"), []byte(actionTmpl), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	st, err := schema.Load(dir, nil)
	if err != nil {
		t.Fatalf("Unexpected schema load failure: %v", err)
	}
	return st
}

func actionTree(t *testing.T) (*config.Tree, *config.Node) {
	t.Helper()
	tree := config.New(actionSchema(t))
	if err := tree.Set([]string{"interfaces", "interface", "eth0", "mtu"},
		"9000", schema.OpSet, "tester"); err != nil {
		t.Fatalf("Unexpected set failure: %v", err)
	}
	n, _ := tree.Find([]string{"interfaces", "interface", "eth0", "mtu"})
	return tree, n
}

// fakeBus scripts replies and records every request it sees.
type fakeBus struct {
	requests []bus.Request
	reply    *bus.Reply
	err      error
}

func (b *fakeBus) Call(_ context.Context, req bus.Request) (*bus.Reply, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if b.reply != nil {
		return b.reply, nil
	}
	return &bus.Reply{}, nil
}

func remoteAction(t *testing.T, text string) *schema.Action {
	t.Helper()
	dir := t.TempDir()
	tmpl := `
top {
    name: text;
    %create: xrl "` + text + `";
}
`
	if err := os.WriteFile(filepath.Join(dir, "r.tmpl"), []byte(tmpl), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	st, err := schema.Load(dir, nil)
	if err != nil {
		t.Fatalf("Unexpected schema load failure: %v", err)
	}
	n, _ := st.Find([]string{"top"})
	return n.Actions[schema.ClauseCreate].Steps[0]
}

func TestExpandRemoteCall(t *testing.T) {
	tree, _ := actionTree(t)
	a := remoteAction(t, "ifmgr/ifmgr/0.1/set_mtu?ifname:txt=$(@)&mtu:u32=$(@.mtu)")

	// expand at the interface instance so $(@) is its key
	eth0, _ := tree.Find([]string{"interfaces", "interface", "eth0"})
	req, err := action.ExpandRemoteCall(tree, a.Remote, eth0, "fallback")
	if err != nil {
		t.Fatalf("Unexpected expansion failure: %v", err)
	}
	if req.Target != "ifmgr" || req.Namespace != "ifmgr/0.1" || req.Method != "set_mtu" {
		t.Fatalf("Unexpected request: %+v", req)
	}
	if len(req.Args) != 2 || req.Args[0].Value != "eth0" || req.Args[1].Value != "9000" {
		t.Fatalf("Unexpected args: %+v", req.Args)
	}
}

func TestValidateReportsUnresolvedVariable(t *testing.T) {
	tree, node := actionTree(t)
	a := remoteAction(t, "tgt/iface/0.1/method?arg:txt=$(no.such.node)")

	err := action.Validate(tree, a, node, "tgt")
	if !merror.Is(err, merror.KindUnresolvedVariable) {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestExecuteStoresReturns(t *testing.T) {
	tree, node := actionTree(t)
	a := remoteAction(t, "tgt/iface/0.1/method?arg:txt=$(@) -> ifindex:u32=$idx")

	b := &fakeBus{reply: &bus.Reply{Atoms: []bus.Atom{{Name: "ifindex", Value: "7"}}}}
	runner := action.NewRunner(b, tree)

	var result error
	fired := 0
	call := runner.NewCall(a, node, "tgt", func(err error) { fired++; result = err })
	call.Execute()

	if fired != 1 || result != nil {
		t.Fatalf("Unexpected completion: fired=%d err=%v", fired, result)
	}
	if v, ok := node.Var("idx"); !ok || v != "7" {
		t.Fatalf("writeback variable not stored: %q %v", v, ok)
	}
}

func TestTransientErrorsSendExactlyNTimes(t *testing.T) {
	tree, node := actionTree(t)
	a := remoteAction(t, "tgt/iface/0.1/method?arg:txt=$(@)")

	b := &fakeBus{err: &bus.CallError{Wire: bus.ErrReplyTimedOut}}
	runner := action.NewRunner(b, tree)
	runner.ResendInterval = time.Millisecond

	var result error
	fired := 0
	call := runner.NewCall(a, node, "tgt", func(err error) { fired++; result = err })
	call.Execute()

	if got := len(b.requests); got != action.DefaultResendCount {
		t.Fatalf("Unexpected send count: got %d want %d", got, action.DefaultResendCount)
	}
	if fired != 1 {
		t.Fatalf("completion callback fired %d times", fired)
	}
	if !merror.Is(result, merror.KindFatalBus) {
		t.Fatalf("Unexpected terminal error: %v", result)
	}
	if !strings.Contains(result.Error(), "retries exhausted") {
		t.Fatalf("Unexpected error text: %v", result)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	tree, node := actionTree(t)
	a := remoteAction(t, "tgt/iface/0.1/method?arg:txt=$(@)")

	b := &fakeBus{err: &bus.CallError{Wire: bus.ErrNoSuchMethod}}
	runner := action.NewRunner(b, tree)

	var result error
	call := runner.NewCall(a, node, "tgt", func(err error) { result = err })
	call.Execute()

	if len(b.requests) != 1 {
		t.Fatalf("permanent error retried: %d sends", len(b.requests))
	}
	if !merror.Is(result, merror.KindPermanentBus) {
		t.Fatalf("Unexpected error: %v", result)
	}
}

func TestUnscheduleFiresCallbackOnce(t *testing.T) {
	tree, node := actionTree(t)
	a := remoteAction(t, "tgt/iface/0.1/method?arg:txt=$(@)")

	b := &fakeBus{}
	runner := action.NewRunner(b, tree)

	fired := 0
	call := runner.NewCall(a, node, "tgt", func(err error) { fired++ })
	call.Unschedule()
	call.Unschedule()
	call.Execute()

	if fired != 1 {
		t.Fatalf("callback fired %d times, want exactly 1", fired)
	}
	if len(b.requests) != 0 {
		t.Fatalf("cancelled call still reached the bus")
	}
}

func TestProgramActionCapturesOutput(t *testing.T) {
	tree, node := actionTree(t)

	dir := t.TempDir()
	tmpl := `
top {
    name: text;
    %create: program "/bin/sh -c echo-test -> stdout=$out";
}
`
	if err := os.WriteFile(filepath.Join(dir, "p.tmpl"), []byte(tmpl), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	st, err := schema.Load(dir, nil)
	if err != nil {
		t.Fatalf("Unexpected schema load failure: %v", err)
	}
	top, _ := st.Find([]string{"top"})
	a := top.Actions[schema.ClauseCreate].Steps[0]
	// rewrite argv to something that produces known output
	a.Program.Args = []schema.Template{
		{{Kind: schema.SegLiteral, Literal: "-c"}},
		{{Kind: schema.SegLiteral, Literal: "echo hello"}},
	}

	runner := action.NewRunner(&fakeBus{}, tree)
	var result error
	call := runner.NewCall(a, node, "", func(err error) { result = err })
	call.Execute()

	if result != nil {
		t.Fatalf("Unexpected program failure: %v", result)
	}
	if v, _ := node.Var("out"); strings.TrimSpace(v) != "hello" {
		t.Fatalf("stdout writeback missing: %q", v)
	}
}

func TestProgramActionFailureCapturesStderr(t *testing.T) {
	tree, node := actionTree(t)

	a := &schema.Action{IsProgram: true, Program: &schema.ProgramTemplate{
		Path: schema.Template{{Kind: schema.SegLiteral, Literal: "/bin/sh"}},
		Args: []schema.Template{
			{{Kind: schema.SegLiteral, Literal: "-c"}},
			{{Kind: schema.SegLiteral, Literal: "echo broken >&2; exit 3"}},
		},
		StderrVar: "err",
	}}

	runner := action.NewRunner(&fakeBus{}, tree)
	var result error
	call := runner.NewCall(a, node, "", func(err error) { result = err })
	call.Execute()

	if !merror.Is(result, merror.KindProcessFailure) {
		t.Fatalf("Unexpected error: %v", result)
	}
	if v, _ := node.Var("err"); strings.TrimSpace(v) != "broken" {
		t.Fatalf("stderr writeback missing: %q", v)
	}
}
