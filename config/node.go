// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package config implements the configuration tree: a mutable,
// value-level instance of a schema tree, with provisional edits that are
// promoted or discarded as a unit by a commit.
package config

import (
	"github.com/danos/rtrmgr/schema"
)

// Node is one node of the configuration tree. Unlike schema.Node, whose
// children are NodeRef indices into its tree's arena, children here are
// owned by the node itself (a plain slice) — configuration trees are small, short-lived copies
// (one candidate + one committed at a time), so the arena trick that
// keeps the schema tree cheap to share isn't needed here; what does
// matter is that a node never holds a raw pointer back to its schema
// tree's internal slice (it holds the tree + a stable NodeRef instead).
type Node struct {
	id       int64
	Segment  string
	schema   *schema.Tree
	schemaNd schema.NodeRef

	Value    string
	HasValue bool
	Operator schema.Operator

	Committed  bool
	Deleted    bool
	ModifierID string

	Parent   *Node
	Children []*Node

	// vars holds values written back into this node by an action's
	// return-spec (retval:type=$varname); read back by later expansions.
	vars map[string]string
}

// SetVar stores an action writeback variable on this node.
func (n *Node) SetVar(name, value string) {
	if n.vars == nil {
		n.vars = make(map[string]string)
	}
	n.vars[name] = value
}

// Var reads an action writeback variable from this node.
func (n *Node) Var(name string) (string, bool) {
	v, ok := n.vars[name]
	return v, ok
}

// SchemaNode returns the schema node that governs this configuration
// node, or nil for a node that is not linked to a schema tree.
func (n *Node) SchemaNode() *schema.Node {
	if n.schema == nil {
		return nil
	}
	return n.schema.Node(n.schemaNd)
}

func (n *Node) IsRoot() bool { return n.Parent == nil }

// Path returns the literal path from the root to n.
func (n *Node) Path() []string {
	var segs []string
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		segs = append([]string{cur.Segment}, segs...)
	}
	return segs
}

func (n *Node) child(segment string) *Node {
	for _, c := range n.Children {
		if c.Segment == segment && !c.Deleted {
			return c
		}
	}
	return nil
}

// childEvenDeleted is used by the diff/delete machinery, which must see
// deleted-but-still-present nodes.
func (n *Node) childEvenDeleted(segment string) *Node {
	for _, c := range n.Children {
		if c.Segment == segment {
			return c
		}
	}
	return nil
}

func (n *Node) clone(parent *Node) *Node {
	c := &Node{
		id:         n.id,
		Segment:    n.Segment,
		schema:     n.schema,
		schemaNd:   n.schemaNd,
		Value:      n.Value,
		HasValue:   n.HasValue,
		Operator:   n.Operator,
		Committed:  n.Committed,
		Deleted:    n.Deleted,
		ModifierID: n.ModifierID,
		Parent:     parent,
	}
	if len(n.vars) > 0 {
		c.vars = make(map[string]string, len(n.vars))
		for k, v := range n.vars {
			c.vars[k] = v
		}
	}
	for _, ch := range n.Children {
		c.Children = append(c.Children, ch.clone(c))
	}
	return c
}

// Key returns the node's own key, used to resolve the "@" self variable
// reference against a placeholder node's instance.
func (n *Node) Key() string {
	if n.SchemaNode() != nil && n.SchemaNode().IsPlaceholder {
		return n.Segment
	}
	if n.Parent != nil {
		return n.Parent.Key()
	}
	return ""
}
