// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package task

import (
	"context"
	"io/ioutil"
	"log"
	"strconv"
	"strings"

	"github.com/danos/rtrmgr/action"
	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/supervisor"
)

// Manager owns the tasks of one commit plan and runs them one at a
// time, in the order they were added. The same manager instance runs
// the plan twice: pass 1 with doExec false (expansion and ordering
// checks only), pass 2 with doExec true.
type Manager struct {
	Supervisor *supervisor.Supervisor
	Runner     *action.Runner

	// globalDoExec false means we never execute anything, whatever the
	// pass: a debug mode in which even pass 2 only pretends.
	globalDoExec bool
	doExec       bool

	tasks map[string]*Task
	order []*Task

	elog *log.Logger
}

func NewManager(sup *supervisor.Supervisor, runner *action.Runner,
	globalDoExec bool, elog *log.Logger) *Manager {
	if elog == nil {
		elog = log.New(ioutil.Discard, "", 0)
	}
	return &Manager{
		Supervisor:   sup,
		Runner:       runner,
		globalDoExec: globalDoExec,
		tasks:        make(map[string]*Task),
		elog:         elog,
	}
}

// SetDoExec selects the pass: false validates, true executes.
func (m *Manager) SetDoExec(v bool) { m.doExec = v }

func (m *Manager) DoExec() bool { return m.doExec }

// Reset discards every task, keeping the supervisor and runner.
func (m *Manager) Reset() {
	m.tasks = make(map[string]*Task)
	m.order = nil
}

// Tasks returns the plan in execution order.
func (m *Manager) Tasks() []*Task { return m.order }

// AddModule creates (or returns) the task for a module. moduleNode is
// the configuration node the module's subtree is rooted at, used to
// expand its lifecycle methods; it may be nil for a module being shut
// down. start queues a process start, stop queues a shutdown.
func (m *Manager) AddModule(mb *schema.ModuleBinding, moduleNode *config.Node,
	start, stop bool) (*Task, error) {

	name := mb.Name()
	if t, ok := m.tasks[name]; ok {
		t.startModule = t.startModule || start
		t.stopModule = t.stopModule || stop
		return t, nil
	}

	if m.Supervisor.Module(name) == nil {
		if err := m.Supervisor.Declare(name, mb.ExecutablePath, mb.DependsOn); err != nil {
			return nil, err
		}
	}

	t := &Task{
		name:        name,
		mgr:         m,
		startModule: start,
		stopModule:  stop,
	}

	target := mb.DefaultTargetName
	if target == "" {
		target = name
	}
	if probe := m.statusProbe(mb, moduleNode, target); probe != nil {
		t.startValidation = NewStatusValidation(PhaseStartup, probe)
		t.configValidation = NewStatusValidation(PhaseConfig, probe)
		t.readyValidation = NewStatusValidation(PhaseReady, probe)
		t.shutdownValidation = NewStatusValidation(PhaseShutdown, probe)
	} else {
		// no status_method: a fixed delay stands in for the probe at
		// every validation point
		t.startValidation = &DelayValidation{Delay: DefaultProbeInterval}
		t.configValidation = &DelayValidation{Delay: DefaultProbeInterval}
		t.readyValidation = &DelayValidation{Delay: DefaultProbeInterval}
		t.shutdownValidation = &DelayValidation{Delay: DefaultProbeInterval}
	}
	if mb.StartupMethod != nil {
		t.startupCall = m.Runner.NewCall(mb.StartupMethod, moduleNode, target,
			func(err error) { t.stepResult = err })
	}
	if mb.ShutdownMethod != nil {
		t.shutdownCall = m.Runner.NewCall(mb.ShutdownMethod, moduleNode, target,
			func(err error) { t.stepResult = err })
	}

	m.tasks[name] = t
	m.order = append(m.order, t)
	return t, nil
}

// AddAction queues one configure step on a module's task.
func (m *Manager) AddAction(modname string, a *schema.Action,
	node *config.Node, defaultTarget string) error {

	t, ok := m.tasks[modname]
	if !ok {
		return merror.NewProcessFailure(modname, "no task for module")
	}
	c := m.Runner.NewCall(a, node, defaultTarget,
		func(err error) { t.stepResult = err })
	t.AddStep(c)
	return nil
}

// Run executes every task in order. The first fatal task failure stops
// the plan: no later task starts, and everything still queued is
// drained so each pending callback fires exactly once. The result is a
// single pass/fail with the first fatal error's text, prefixed with the
// failing module's name.
func (m *Manager) Run() (bool, string) {
	var warnings []string
	for i, t := range m.order {
		ok, msg := t.Run()
		if !ok {
			m.elog.Printf("task %s failed: %s", t.name, msg)
			t.drainAll()
			for _, rest := range m.order[i+1:] {
				rest.drainAll()
			}
			return false, t.name + ": " + msg
		}
		if msg != "" {
			warnings = append(warnings, t.name+": "+msg)
		}
	}
	return true, strings.Join(warnings, "; ")
}

// KillProcess kills a fatally wounded module outright: if we get here
// we cannot talk to it over the bus, so there is no polite path.
func (m *Manager) KillProcess(modname string) {
	done := make(chan struct{})
	m.Supervisor.Kill(modname, func() { close(done) })
	<-done
}

// statusProbe builds a ProbeFunc from a module's status_method, or nil
// if none is declared (or it is not a remote call).
func (m *Manager) statusProbe(mb *schema.ModuleBinding, node *config.Node,
	target string) ProbeFunc {

	sm := mb.StatusMethod
	if sm == nil || sm.IsProgram {
		return nil
	}
	return func() (ProbeStatus, string, error) {
		req, err := action.ExpandRemoteCall(m.Runner.Tree, sm.Remote, node, target)
		if err != nil {
			return StatusNull, "", err
		}
		reply, err := m.Runner.Bus.Call(context.Background(), req)
		if err != nil {
			return StatusNull, "", bus.Classify(err)
		}
		stText, _ := reply.Get("status")
		reason, _ := reply.Get("reason")
		n, convErr := strconv.Atoi(stText)
		if convErr != nil || n < int(StatusNull) || n > int(StatusDone) {
			return StatusNull, "", merror.NewPermanentBus(
				"status probe returned %q, want 0..6", stText)
		}
		return ProbeStatus(n), reason, nil
	}
}
