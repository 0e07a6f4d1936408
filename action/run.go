// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package action

import (
	"bytes"
	"context"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	spawn "os/exec"

	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

const (
	// DefaultResendCount caps the sends of a single remote call, first
	// attempt included, while its bus error stays transient;
	// DefaultResendInterval spaces them.
	DefaultResendCount    = 10
	DefaultResendInterval = time.Second
)

// Runner executes expanded actions against the bus and the host.
type Runner struct {
	Bus  bus.Bus
	Tree *config.Tree

	ResendCount    int
	ResendInterval time.Duration

	// RunAsUser, if set, runs program actions under this account's
	// credentials.
	RunAsUser string
}

func NewRunner(b bus.Bus, t *config.Tree) *Runner {
	return &Runner{
		Bus:            b,
		Tree:           t,
		ResendCount:    DefaultResendCount,
		ResendInterval: DefaultResendInterval,
	}
}

// Call is one scheduled execution of an action at a configuration node.
// Each Call carries its own resend counter, and its completion callback
// fires exactly once, whether the call ran, failed, or was unscheduled.
type Call struct {
	runner        *Runner
	action        *schema.Action
	node          *config.Node
	defaultTarget string

	resends   int
	done      func(err error)
	mu        sync.Mutex
	fired     bool
	cancelled chan struct{}
}

// NewCall schedules action at node. done fires exactly once when the
// call completes, fails, or is unscheduled.
func (r *Runner) NewCall(a *schema.Action, node *config.Node,
	defaultTarget string, done func(err error)) *Call {
	return &Call{
		runner:        r,
		action:        a,
		node:          node,
		defaultTarget: defaultTarget,
		done:          done,
		cancelled:     make(chan struct{}),
	}
}

// Resends reports how many resends this call has issued so far.
func (c *Call) Resends() int { return c.resends }

// Completed reports whether the completion callback has fired. Callers
// use this to account issued against completed actions after a drain.
func (c *Call) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Reset re-arms the call for another pass over the same plan: the
// completion callback may fire again and the resend budget starts over.
func (c *Call) Reset() {
	c.mu.Lock()
	c.fired = false
	c.resends = 0
	c.mu.Unlock()
	select {
	case <-c.cancelled:
		c.cancelled = make(chan struct{})
	default:
	}
}

// Unschedule cancels a pending call. Its completion callback still
// fires, once, with a cancellation error, so callers keep a consistent
// count of issued versus completed actions.
func (c *Call) Unschedule() {
	select {
	case <-c.cancelled:
	default:
		close(c.cancelled)
	}
	c.finish(&merror.Error{Kind: merror.KindProcessFailure, Message: "action cancelled"})
}

func (c *Call) finish(err error) {
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.mu.Unlock()
	c.done(err)
}

// Execute runs the call to completion, retrying transient bus errors up
// to the runner's resend budget. It blocks the calling goroutine; the
// task manager runs calls strictly one at a time.
func (c *Call) Execute() {
	select {
	case <-c.cancelled:
		return
	default:
	}
	if c.action.IsProgram {
		c.finish(c.runProgram())
		return
	}
	c.finish(c.runRemote())
}

// ExecuteValidateOnly expands the action but does not run it, then
// fires the completion callback with the expansion result. This is the
// whole of a pass-1 "execution": errors surface, nothing external is
// touched.
func (c *Call) ExecuteValidateOnly() {
	select {
	case <-c.cancelled:
		return
	default:
	}
	c.finish(Validate(c.runner.Tree, c.action, c.node, c.defaultTarget))
}

func (c *Call) runRemote() error {
	req, err := ExpandRemoteCall(c.runner.Tree, c.action.Remote, c.node, c.defaultTarget)
	if err != nil {
		return err
	}
	for {
		reply, err := c.runner.Bus.Call(context.Background(), req)
		if err == nil {
			c.storeReturns(reply)
			return nil
		}
		cerr := bus.Classify(err)
		if cerr.Kind != merror.KindTransientBus {
			return cerr
		}
		if c.resends >= c.runner.ResendCount-1 {
			return merror.NewFatalBus("%s/%s on %s: retries exhausted: %s",
				req.Namespace, req.Method, req.Target, cerr.Message)
		}
		c.resends++
		select {
		case <-c.cancelled:
			return nil // Unschedule already fired the callback
		case <-time.After(c.runner.ResendInterval):
		}
	}
}

// storeReturns matches reply atoms against the return-spec by atom name
// and stores each declared writeback variable on the originating node.
func (c *Call) storeReturns(reply *bus.Reply) {
	if c.node == nil {
		return
	}
	for _, rs := range c.action.Remote.Returns {
		if v, ok := reply.Get(rs.Atom); ok {
			c.node.SetVar(rs.Variable, v)
		}
	}
}

func (c *Call) runProgram() error {
	path, args, err := ExpandProgram(c.runner.Tree, c.action.Program, c.node)
	if err != nil {
		return err
	}
	cmd := spawn.Command(path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.runner.RunAsUser != "" {
		if err := setCredentials(cmd, c.runner.RunAsUser); err != nil {
			return &merror.Error{Kind: merror.KindProcessFailure,
				Message: "run as " + c.runner.RunAsUser + ": " + err.Error()}
		}
	}
	runErr := cmd.Run()

	pt := c.action.Program
	if c.node != nil {
		if pt.StdoutVar != "" {
			c.node.SetVar(pt.StdoutVar, stdout.String())
		}
		if pt.StderrVar != "" {
			c.node.SetVar(pt.StderrVar, stderr.String())
		}
	}
	if runErr != nil {
		return &merror.Error{Kind: merror.KindProcessFailure,
			Message: path + ": " + runErr.Error() + ": " + stderr.String()}
	}
	return nil
}

// setCredentials arranges for cmd to run under the named account.
func setCredentials(cmd *spawn.Cmd, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)},
	}
	return nil
}
