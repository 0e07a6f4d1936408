// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package task

import (
	"strings"

	"github.com/danos/rtrmgr/action"
	"github.com/danos/rtrmgr/merror"
)

// Task is one execution of the per-module state machine during a
// commit: optionally start the module, validate it, run its queued
// configure steps, validate readiness, optionally stop it.
//
// Steps are strictly sequential; the next step starts only after the
// current step's completion callback has run.
type Task struct {
	name string
	mgr  *Manager

	startModule bool
	stopModule  bool

	startValidation    Validation
	configValidation   Validation
	readyValidation    Validation
	shutdownValidation Validation

	startupCall  *action.Call
	shutdownCall *action.Call
	steps        []*action.Call

	justStarted bool
	warnings    []string

	// stepResult carries the most recent call's completion result from
	// its callback to the state machine.
	stepResult error
}

func (t *Task) Name() string { return t.name }

// Steps returns the queued configure steps, in execution order.
func (t *Task) Steps() []*action.Call { return t.steps }

// AddStep queues a configure step.
func (t *Task) AddStep(c *action.Call) { t.steps = append(t.steps, c) }

// Run drives the task to a terminal state and reports the outcome. A
// false success carries the first fatal error's text; a true success
// may still carry surfaced non-fatal warnings.
func (t *Task) Run() (bool, string) {
	t.reset()
	if t.startModule {
		if ok, msg := t.stepStart(); !ok {
			return false, msg
		}
	}
	if ok, msg := t.stepStartupActions(); !ok {
		return false, msg
	}
	if ok, msg := t.stepConfig(); !ok {
		return false, msg
	}
	if ok, msg := t.stepReady(); !ok {
		return false, msg
	}
	if t.stopModule {
		t.stepStop()
	}
	return true, strings.Join(t.warnings, "; ")
}

// stepStart brings the module process up and runs its startup validation
// (the status probe, or the fixed-delay proxy when no status_method is
// declared). In pass 1 nothing is touched.
func (t *Task) stepStart() (bool, string) {
	if !t.mgr.doExec {
		return true, ""
	}
	alreadyUp := t.mgr.Supervisor.IsRunning(t.name)
	ok := false
	t.mgr.Supervisor.Start(t.name, t.mgr.globalDoExec, false, func(success bool) {
		ok = success
	})
	if !ok {
		return false, "failed to start module"
	}
	t.justStarted = !alreadyUp

	if t.startValidation == nil {
		return true, ""
	}
	var vOK bool
	var vMsg string
	t.startValidation.Validate(func(ok bool, msg string) { vOK, vMsg = ok, msg })
	if !vOK {
		if t.justStarted {
			return false, "startup validation failed: " + vMsg
		}
		t.warn("startup validation failed: " + vMsg)
		return true, ""
	}
	t.mgr.Supervisor.MarkRunning(t.name)
	return true, ""
}

// stepStartupActions runs the module's startup_method, then waits for
// the module to report config-ready.
func (t *Task) stepStartupActions() (bool, string) {
	if t.startupCall != nil && (t.justStarted || !t.mgr.doExec) {
		if err := t.runCall(t.startupCall); err != nil {
			if merror.Is(err, merror.KindPermanentBus) {
				// surfaced but not fatal for the target, even during a
				// startup transition
				t.warn("startup action: " + err.Error())
			} else {
				return false, "startup action: " + err.Error()
			}
		}
	}
	if t.configValidation != nil && t.mgr.doExec {
		var vOK bool
		var vMsg string
		t.configValidation.Validate(func(ok bool, msg string) { vOK, vMsg = ok, msg })
		if !vOK {
			return false, "config-ready validation failed: " + vMsg
		}
	}
	return true, ""
}

// stepConfig runs every queued configure step in order. A permanent bus
// error is surfaced and the remaining steps still run; anything else
// fails the task and the remaining steps are drained.
func (t *Task) stepConfig() (bool, string) {
	for i, c := range t.steps {
		if err := t.runCall(c); err != nil {
			if merror.Is(err, merror.KindPermanentBus) {
				t.warn(err.Error())
				continue
			}
			t.drainFrom(i + 1)
			return false, err.Error()
		}
	}
	return true, ""
}

func (t *Task) stepReady() (bool, string) {
	if t.readyValidation == nil || !t.mgr.doExec {
		return true, ""
	}
	var vOK bool
	var vMsg string
	t.readyValidation.Validate(func(ok bool, msg string) { vOK, vMsg = ok, msg })
	if !vOK {
		return false, "readiness validation failed: " + vMsg
	}
	return true, ""
}

// stepStop asks the module to shut down via its shutdown_method and
// validates the result, then has the supervisor kill the process
// (SIGTERM, then SIGKILL after its grace period) whether or not the
// polite route succeeded; a failed shutdown_method or shutdown
// validation is recorded as a warning. Stop failures never fail the
// task.
func (t *Task) stepStop() {
	if !t.mgr.doExec {
		if t.shutdownCall != nil {
			t.runCall(t.shutdownCall)
		}
		return
	}
	politeOK := false
	if t.shutdownCall != nil {
		if err := t.runCall(t.shutdownCall); err == nil {
			politeOK = true
		} else {
			t.warn("shutdown action: " + err.Error())
		}
	}
	if politeOK && t.shutdownValidation != nil {
		t.shutdownValidation.Validate(func(ok bool, msg string) {
			if !ok {
				politeOK = false
				t.warn("shutdown validation failed: " + msg)
			}
		})
	}
	done := make(chan struct{})
	t.mgr.Supervisor.Kill(t.name, func() { close(done) })
	<-done
}

// runCall executes one action call (or, in pass 1, validates its
// expansion) and returns its completion result.
func (t *Task) runCall(c *action.Call) error {
	t.stepResult = nil
	if t.mgr.doExec {
		c.Execute()
	} else {
		c.ExecuteValidateOnly()
	}
	return t.stepResult
}

// drainFrom unschedules every queued step from index on, so each
// pending completion callback still fires exactly once.
func (t *Task) drainFrom(idx int) {
	for _, c := range t.steps[idx:] {
		c.Unschedule()
	}
	if t.shutdownCall != nil {
		t.shutdownCall.Unschedule()
	}
}

// drainAll cancels everything this task had queued; used when an
// earlier task's failure aborts the plan.
func (t *Task) drainAll() {
	if t.startupCall != nil {
		t.startupCall.Unschedule()
	}
	t.drainFrom(0)
}

func (t *Task) warn(msg string) {
	t.warnings = append(t.warnings, msg)
}

// reset re-arms the task and its calls so the same plan can run in
// both commit passes.
func (t *Task) reset() {
	t.justStarted = false
	t.warnings = nil
	t.stepResult = nil
	if t.startupCall != nil {
		t.startupCall.Reset()
	}
	if t.shutdownCall != nil {
		t.shutdownCall.Reset()
	}
	for _, c := range t.steps {
		c.Reset()
	}
}
