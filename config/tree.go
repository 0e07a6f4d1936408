// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package config

import (
	"sync/atomic"

	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

var nodeIDCounter int64

func nextNodeID() int64 {
	return atomic.AddInt64(&nodeIDCounter, 1)
}

// Tree is a mutable instance of a schema tree. A Tree is mutated only
// while it is in provisional state (some nodes Committed == false);
// Commit promotes every node to Committed == true as a unit, or the
// caller discards the whole tree and starts again from the last
// committed snapshot (see DiscardProvisional).
type Tree struct {
	Schema *schema.Tree
	root   *Node

	// ExprEval resolves a back-tick `expression` against this tree. The
	// core has no expression language of its own; the host supplies the
	// evaluator.
	ExprEval func(expr string) (string, error)

	// committedSnapshot is the last Clone taken immediately after a
	// successful commit; DiscardProvisional restores from it.
	committedSnapshot *Node
}

// New creates an empty, committed configuration tree over st.
func New(st *schema.Tree) *Tree {
	root := &Node{id: nextNodeID(), schema: st, schemaNd: st.Root().Ref(), Committed: true}
	t := &Tree{Schema: st, root: root}
	t.committedSnapshot = root.clone(nil)
	return t
}

func (t *Tree) Root() *Node { return t.root }

// Clone returns a deep copy of the tree, sharing the schema tree but
// none of the configuration node graph, for use as a diff baseline or a
// commit candidate.
func (t *Tree) Clone() *Tree {
	c := &Tree{Schema: t.Schema, ExprEval: t.ExprEval}
	c.root = t.root.clone(nil)
	c.committedSnapshot = t.committedSnapshot.clone(nil)
	return c
}

// Find walks path through the existing configuration children, one
// segment at a time, and returns the node it names; it reports false if
// any segment has no matching child.
func (t *Tree) Find(path []string) (*Node, bool) {
	cur := t.root
	for _, seg := range path {
		c := cur.child(seg)
		if c == nil {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// Get returns the string value at path.
func (t *Tree) Get(path []string) (string, bool) {
	n, ok := t.Find(path)
	if !ok || !n.HasValue {
		return "", false
	}
	return n.Value, true
}

// Set creates or updates the node at path, validating it against the
// schema. The node (and every ancestor created to reach it) is marked
// uncommitted.
func (t *Tree) Set(path []string, value string, op schema.Operator, modifierID string) error {
	sn, ok := t.Schema.Find(path)
	if !ok {
		return merror.NewSchemaViolation(path, "no such configuration node")
	}
	if !sn.AllowsOperator(op) {
		return merror.NewSchemaViolation(path, "operator %s not permitted here", op)
	}
	if sn.Type != schema.TypeNone {
		if err := sn.AdmitsValue(value); err != nil {
			return err
		}
	}
	n := t.ensurePath(path, modifierID)
	n.Value = value
	n.HasValue = sn.Type != schema.TypeNone
	n.Operator = op
	n.Committed = false
	n.Deleted = false
	n.ModifierID = modifierID
	return nil
}

// ensurePath creates any missing nodes along path (each marked
// uncommitted) and returns the node at path.
func (t *Tree) ensurePath(path []string, modifierID string) *Node {
	cur := t.root
	for _, seg := range path {
		c := cur.childEvenDeleted(seg)
		if c == nil {
			c = &Node{id: nextNodeID(), Segment: seg, Parent: cur, ModifierID: modifierID}
			cur.Children = append(cur.Children, c)
		} else if c.Deleted {
			c.Deleted = false
			c.Committed = false
		}
		if sn, ok := t.Schema.Find(t.pathOf(c)); ok {
			c.schema = t.Schema
			c.schemaNd = sn.Ref()
		}
		cur = c
	}
	return cur
}

func (t *Tree) pathOf(n *Node) []string { return n.Path() }

// Delete marks the subtree at path as deleted but keeps it present so
// Diff can still report it; it is physically removed only after a
// successful commit (see PromoteCommit).
func (t *Tree) Delete(path []string, modifierID string) error {
	n, ok := t.Find(path)
	if !ok {
		return merror.NewSchemaViolation(path, "no such configuration node")
	}
	markDeleted(n, modifierID)
	return nil
}

func markDeleted(n *Node, modifierID string) {
	n.Deleted = true
	n.Committed = false
	n.ModifierID = modifierID
	for _, c := range n.Children {
		markDeleted(c, modifierID)
	}
}

// AddDefaultChildren synthesizes a committed default node under every
// container for every schema node with a default value that has no
// corresponding configuration node yet.
func (t *Tree) AddDefaultChildren() {
	var walk func(cfg *Node, sn *schema.Node)
	walk = func(cfg *Node, sn *schema.Node) {
		for _, childRef := range schemaChildren(t.Schema, sn) {
			child := t.Schema.Node(childRef)
			if child.IsPlaceholder {
				for _, existing := range cfg.Children {
					if existing.schema == t.Schema && existing.schemaNd == childRef {
						walk(existing, child)
					}
				}
				continue
			}
			existing := cfg.child(child.Name)
			if existing == nil && child.HasDefault {
				existing = &Node{
					id: nextNodeID(), Segment: child.Name, Parent: cfg,
					schema: t.Schema, schemaNd: childRef,
					Value: child.Default, HasValue: true,
					Operator: schema.OpSet, Committed: true,
				}
				cfg.Children = append(cfg.Children, existing)
			}
			if existing != nil {
				walk(existing, child)
			}
		}
	}
	walk(t.root, t.Schema.Root())
}

func schemaChildren(st *schema.Tree, n *schema.Node) []schema.NodeRef {
	return n.ChildRefs()
}

// Committed returns a fresh tree over the last committed snapshot, for
// use as a diff baseline.
func (t *Tree) Committed() *Tree {
	c := &Tree{Schema: t.Schema, ExprEval: t.ExprEval}
	c.root = t.committedSnapshot.clone(nil)
	c.committedSnapshot = t.committedSnapshot.clone(nil)
	return c
}

// DiscardProvisional restores the tree to the state captured by the
// last successful commit (or tree creation, if none yet).
func (t *Tree) DiscardProvisional() {
	t.root = t.committedSnapshot.clone(nil)
}

// PromoteCommit marks every uncommitted node committed, physically
// removes deleted subtrees, and snapshots the result so a subsequent
// DiscardProvisional has something to restore to. Called by the commit
// engine only after pass 2 succeeds.
func (t *Tree) PromoteCommit() {
	pruneDeleted(t.root)
	commitAll(t.root)
	t.committedSnapshot = t.root.clone(nil)
}

func pruneDeleted(n *Node) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Deleted {
			continue
		}
		pruneDeleted(c)
		kept = append(kept, c)
	}
	n.Children = kept
}

func commitAll(n *Node) {
	n.Committed = true
	for _, c := range n.Children {
		commitAll(c)
	}
}
