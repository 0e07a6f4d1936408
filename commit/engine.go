// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package commit diffs a candidate configuration tree against the
// committed tree, computes the set of affected modules, orders them by
// declared dependencies, and drives the resulting plan through the task
// manager in two passes: verify, then execute.
package commit

import (
	"io/ioutil"
	"log"

	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/task"
)

// ModuleSets are the module names a diff touches.
type ModuleSets struct {
	// Changed own a node whose value or presence differs.
	Changed map[string]bool
	// Active own any node present in the candidate.
	Active map[string]bool
	// Inactive were active in the committed tree but are no longer;
	// candidates for shutdown.
	Inactive map[string]bool
}

// Engine owns one commit at a time.
type Engine struct {
	Schema  *schema.Tree
	Manager *task.Manager

	elog *log.Logger
}

func NewEngine(st *schema.Tree, mgr *task.Manager, elog *log.Logger) *Engine {
	if elog == nil {
		elog = log.New(ioutil.Discard, "", 0)
	}
	return &Engine{Schema: st, Manager: mgr, elog: elog}
}

// Analyze diffs candidate against its committed baseline and reports
// the affected module sets.
func (e *Engine) Analyze(candidate *config.Tree) (delta, deletion *config.Tree, sets *ModuleSets) {
	committed := candidate.Committed()
	delta, deletion = candidate.Diff(committed)

	sets = &ModuleSets{
		Changed:  make(map[string]bool),
		Active:   make(map[string]bool),
		Inactive: make(map[string]bool),
	}
	collectModules(e.Schema, delta.Root(), sets.Changed, false)
	collectModules(e.Schema, deletion.Root(), sets.Changed, true)
	collectModules(e.Schema, candidate.Root(), sets.Active, false)

	prevActive := make(map[string]bool)
	collectModules(e.Schema, committed.Root(), prevActive, false)
	for name := range prevActive {
		if !sets.Active[name] {
			sets.Inactive[name] = true
		}
	}
	return delta, deletion, sets
}

// collectModules walks a configuration tree and records the module that
// owns each node. A deletion tree flags its nodes deleted, so the
// caller asks for those to be included; everywhere else a deleted node
// no longer counts.
func collectModules(st *schema.Tree, n *config.Node, out map[string]bool, includeDeleted bool) {
	for _, c := range n.Children {
		if c.Deleted && !includeDeleted {
			continue
		}
		if sn := c.SchemaNode(); sn != nil {
			if mb := st.OwningModule(sn.Ref()); mb != nil {
				out[mb.Name()] = true
			}
		}
		collectModules(st, c, out, includeDeleted)
	}
}

// Plan populates the task manager from an analyzed diff: one task per
// required module in dependency order, then one shutdown task per
// inactive module in reverse order. Returns the startup order.
func (e *Engine) Plan(candidate, delta, deletion *config.Tree, sets *ModuleSets) ([]string, error) {
	committed := candidate.Committed()
	required := requiredModules(e.Schema, sets.Changed)
	order, err := topoOrder(e.Schema, required)
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		if sets.Inactive[name] {
			// the module's whole subtree is gone; it only gets a
			// shutdown task, below
			continue
		}
		mb, ok := e.Schema.ModuleByName(name)
		if !ok {
			return nil, merror.NewSchemaViolation(nil, "module %q is not declared by any %%modinfo", name)
		}
		moduleNode := moduleConfigNode(e.Schema, candidate, mb)
		start := sets.Active[name] && !e.Manager.Supervisor.IsRunning(name)
		if _, err := e.Manager.AddModule(mb, moduleNode, start, false); err != nil {
			return nil, err
		}

		target := mb.DefaultTargetName
		if target == "" {
			target = name
		}
		if mb.StartCommit != nil && sets.Changed[name] {
			if err := e.Manager.AddAction(name, mb.StartCommit, moduleNode, target); err != nil {
				return nil, err
			}
		}
		if err := e.addNodeActions(name, target, deletion, candidate, committed, true); err != nil {
			return nil, err
		}
		if err := e.addNodeActions(name, target, delta, candidate, committed, false); err != nil {
			return nil, err
		}
		if mb.EndCommit != nil && sets.Changed[name] {
			if err := e.Manager.AddAction(name, mb.EndCommit, moduleNode, target); err != nil {
				return nil, err
			}
		}
	}

	shutdown, err := e.shutdownOrder(sets)
	if err != nil {
		return nil, err
	}
	for _, name := range shutdown {
		mb, ok := e.Schema.ModuleByName(name)
		if !ok {
			continue
		}
		if _, err := e.Manager.AddModule(mb, nil, false, true); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// shutdownOrder orders the inactive modules for stopping: the reverse
// of startup order, so dependents go down before their dependencies.
func (e *Engine) shutdownOrder(sets *ModuleSets) ([]string, error) {
	inactive := make(map[string]bool, len(sets.Inactive))
	for name := range sets.Inactive {
		inactive[name] = true
	}
	order, err := topoOrder(e.Schema, inactive)
	if err != nil {
		return nil, err
	}
	return reverse(order), nil
}

// addNodeActions walks a delta or deletion tree and queues, for every
// node the module owns, the action its change kind binds. Actions are
// anchored on the candidate tree's node where one exists (a diff tree
// holds only what changed, and writebacks belong on the node that
// survives the commit); committed is the baseline used to tell a
// created node from an updated one.
func (e *Engine) addNodeActions(modname, target string,
	tree, candidate, committed *config.Tree, isDeletion bool) error {

	var walk func(n *config.Node) error
	walk = func(n *config.Node) error {
		for _, c := range n.Children {
			sn := c.SchemaNode()
			if sn != nil {
				owner := e.Schema.OwningModule(sn.Ref())
				if owner != nil && owner.Name() == modname {
					_, existed := committed.Find(c.Path())
					anchor := c
					if cand, ok := candidate.Find(c.Path()); ok {
						anchor = cand
					}
					if err := e.queueActionsFor(modname, target, anchor, sn, isDeletion, !existed); err != nil {
						return err
					}
				}
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tree.Root())
}

// queueActionsFor picks the action binding a changed node fires. A
// deleted node fires %delete; a created node fires %create (falling
// back to %set); an updated node fires %update (falling back to %set).
// %activate, if bound, chains after a create or update.
func (e *Engine) queueActionsFor(modname, target string, c *config.Node,
	sn *schema.Node, isDeletion, isCreate bool) error {

	pick := func(kinds ...schema.ClauseKind) *schema.ActionBinding {
		for _, k := range kinds {
			if b, ok := sn.Actions[k]; ok {
				return b
			}
		}
		return nil
	}

	var bindings []*schema.ActionBinding
	if isDeletion {
		if b := pick(schema.ClauseDelete); b != nil {
			bindings = append(bindings, b)
		}
	} else {
		if isCreate {
			if b := pick(schema.ClauseCreate, schema.ClauseSet); b != nil {
				bindings = append(bindings, b)
			}
		} else {
			if b := pick(schema.ClauseUpdate, schema.ClauseSet); b != nil {
				bindings = append(bindings, b)
			}
		}
		if b := pick(schema.ClauseActivate); b != nil {
			bindings = append(bindings, b)
		}
	}

	for _, b := range bindings {
		for _, a := range b.Steps {
			if err := e.Manager.AddAction(modname, a, c, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// moduleConfigNode resolves the configuration node a module's subtree
// is rooted at, or nil if the path crosses a placeholder or the subtree
// is absent.
func moduleConfigNode(st *schema.Tree, t *config.Tree, mb *schema.ModuleBinding) *config.Node {
	path := st.Path(mb.NodeRef())
	for _, seg := range path {
		if seg == "@" {
			return nil
		}
	}
	n, ok := t.Find(path)
	if !ok {
		return nil
	}
	return n
}

// Commit drives a full two-pass commit of candidate: pass 1 validates
// expansion and ordering with execution disabled; pass 2 runs the same
// plan for real. On success the candidate's provisional edits are
// promoted; on failure they are discarded and the first fatal error is
// returned, prefixed with the failing module's name. Actions already
// applied to other modules are not rolled back.
func (e *Engine) Commit(candidate *config.Tree) error {
	e.Manager.Reset()
	e.Manager.Runner.Tree = candidate
	delta, deletion, sets := e.Analyze(candidate)
	if _, err := e.Plan(candidate, delta, deletion, sets); err != nil {
		candidate.DiscardProvisional()
		return err
	}

	e.Manager.Supervisor.BeginCommit()
	defer e.Manager.Supervisor.EndCommit()

	e.Manager.SetDoExec(false)
	if ok, msg := e.Manager.Run(); !ok {
		candidate.DiscardProvisional()
		return &merror.Error{Kind: merror.KindProcessFailure,
			Message: "commit validation failed: " + msg}
	}

	e.Manager.SetDoExec(true)
	ok, msg := e.Manager.Run()
	if !ok {
		candidate.DiscardProvisional()
		return &merror.Error{Kind: merror.KindProcessFailure, Message: msg}
	}
	if msg != "" {
		e.elog.Printf("commit completed with warnings: %s", msg)
	}
	candidate.PromoteCommit()
	return nil
}
