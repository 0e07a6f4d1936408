// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package action expands the templated actions a schema declares
// (remote calls and program invocations) against a configuration node,
// runs them, and writes returned values back into the tree.
//
// Expansion and execution are split so the commit engine can validate
// every action in pass 1 without side effects.
package action

import (
	"github.com/danos/rtrmgr/bus"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/schema"
)

// ExpandRemoteCall substitutes a remote-call template's variables at
// node and returns the concrete bus request. The target falls back to
// defaultTarget when the template's target expands empty.
func ExpandRemoteCall(t *config.Tree, rc *schema.RemoteCallTemplate,
	at *config.Node, defaultTarget string) (bus.Request, error) {

	target, err := t.ExpandTemplate(rc.Target, at)
	if err != nil {
		return bus.Request{}, err
	}
	if target == "" {
		target = defaultTarget
	}
	req := bus.Request{
		Target:    target,
		Namespace: rc.Namespace,
		Method:    rc.Method,
	}
	for _, a := range rc.Args {
		v, err := t.ExpandTemplate(a.Value, at)
		if err != nil {
			return bus.Request{}, err
		}
		req.Args = append(req.Args, bus.Atom{Name: a.Name, Type: a.Type, Value: v})
	}
	return req, nil
}

// ExpandProgram substitutes a program template's variables at node and
// returns the executable path and argv tail.
func ExpandProgram(t *config.Tree, pt *schema.ProgramTemplate,
	at *config.Node) (path string, args []string, err error) {

	path, err = t.ExpandTemplate(pt.Path, at)
	if err != nil {
		return "", nil, err
	}
	for _, a := range pt.Args {
		v, err := t.ExpandTemplate(a, at)
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
	}
	return path, args, nil
}

// Validate expands an action without executing it. The commit engine
// runs this on every action referenced by a changed subtree before
// pass 2 begins; an unresolved variable fails here, in pass 1.
func Validate(t *config.Tree, a *schema.Action, at *config.Node, defaultTarget string) error {
	if a.IsProgram {
		_, _, err := ExpandProgram(t, a.Program, at)
		return err
	}
	_, err := ExpandRemoteCall(t, a.Remote, at, defaultTarget)
	return err
}
