// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema

import (
	"strconv"
	"strings"

	"github.com/danos/rtrmgr/merror"
)

// NodeRef is an index into a Tree's node arena. The root is created
// first, so it is always index 0 and the zero value refers to it;
// noParent marks a missing reference.
type NodeRef int

const noParent NodeRef = -1

// Node is one node of the schema tree. Children are addressed by index
// into the owning Tree, not by pointer, so the tree is cheap to share
// across goroutines and across commit passes.
type Node struct {
	ref    NodeRef
	parent NodeRef

	Name            string // literal path segment, or "@" for a placeholder
	IsPlaceholder   bool
	Type            ValueType
	HasDefault      bool
	Default         string
	Help            string
	Allowed         []AllowedValue
	AllowedRanges   []AllowedRange
	AllowedOperator map[Operator]bool
	// Variables this node exposes for $(name) resolution by other nodes.
	Variables []string

	Actions map[ClauseKind]*ActionBinding
	Module  *ModuleBinding

	children    []NodeRef
	childByName map[string]NodeRef
}

func (n *Node) Ref() NodeRef { return n.ref }

// ChildRefs returns the node's children, in declaration order.
func (n *Node) ChildRefs() []NodeRef { return n.children }

// AllowsOperator reports whether op is legal for this node. A settable
// leaf with no %allow-operator clause admits only "=".
func (n *Node) AllowsOperator(op Operator) bool {
	if len(n.AllowedOperator) == 0 {
		return op == OpSet
	}
	return n.AllowedOperator[op]
}

// AdmitsValue checks a candidate leaf value string against this node's
// %allow / %allow-range constraints. The union of both is admitted.
func (n *Node) AdmitsValue(value string) error {
	if len(n.Allowed) == 0 && len(n.AllowedRanges) == 0 {
		return nil
	}
	for _, a := range n.Allowed {
		if a.Value == value {
			return nil
		}
	}
	if len(n.AllowedRanges) > 0 {
		if iv, err := strconv.ParseInt(value, 10, 64); err == nil {
			for _, r := range n.AllowedRanges {
				if r.Contains(iv) {
					return nil
				}
			}
		}
	}
	return merror.NewSchemaViolation(nil, "value %q not permitted by %s", value, n.Name)
}

// Tree is the parsed, validated schema.
type Tree struct {
	nodes     []*Node
	root      NodeRef
	variables map[string]NodeRef
	modules   map[string]*ModuleBinding
	sigdb     *CallSignatureDB
}

func newTree() *Tree {
	t := &Tree{
		variables: make(map[string]NodeRef),
		modules:   make(map[string]*ModuleBinding),
	}
	t.root = t.newNode(noParent, "", false)
	return t
}

func (t *Tree) newNode(parent NodeRef, name string, placeholder bool) NodeRef {
	ref := NodeRef(len(t.nodes))
	t.nodes = append(t.nodes, &Node{
		ref:             ref,
		parent:          parent,
		Name:            name,
		IsPlaceholder:   placeholder,
		AllowedOperator: make(map[Operator]bool),
		childByName:     make(map[string]NodeRef),
	})
	if parent != noParent {
		pn := t.Node(parent)
		pn.children = append(pn.children, ref)
		if !placeholder {
			pn.childByName[name] = ref
		}
	}
	return ref
}

func (t *Tree) Node(ref NodeRef) *Node { return t.nodes[ref] }

func (t *Tree) Root() *Node { return t.nodes[t.root] }

// Find resolves a path of literal segments to the schema node that
// governs it. Placeholder children match any single segment.
func (t *Tree) Find(path []string) (*Node, bool) {
	cur := t.root
	for _, seg := range path {
		n := t.Node(cur)
		if child, ok := n.childByName[seg]; ok {
			cur = child
			continue
		}
		matched := false
		for _, c := range n.children {
			if t.Node(c).IsPlaceholder {
				cur = c
				matched = true
				break
			}
		}
		if !matched {
			return nil, false
		}
	}
	return t.Node(cur), true
}

// FindByVariable resolves a $(name) reference to the node that declared
// it via its Variables list.
func (t *Tree) FindByVariable(name string) (*Node, bool) {
	ref, ok := t.variables[name]
	if !ok {
		return nil, false
	}
	return t.Node(ref), true
}

// Modules returns every %modinfo binding in the tree, in declaration
// order.
func (t *Tree) Modules() []*ModuleBinding {
	out := make([]*ModuleBinding, 0, len(t.modules))
	for _, n := range t.nodes {
		if n.Module != nil {
			out = append(out, n.Module)
		}
	}
	return out
}

func (t *Tree) ModuleByName(name string) (*ModuleBinding, bool) {
	m, ok := t.modules[name]
	return m, ok
}

// OwningModule walks from ref towards the root and returns the first
// %modinfo binding found, or nil if no module owns this subtree.
func (t *Tree) OwningModule(ref NodeRef) *ModuleBinding {
	for r := ref; r != noParent; r = t.Node(r).parent {
		if m := t.Node(r).Module; m != nil {
			return m
		}
	}
	return nil
}

// Path returns the literal path from the root to ref, substituting "@"
// for placeholder segments (callers with a concrete key use the
// configuration tree's own path, not this one).
func (t *Tree) Path(ref NodeRef) []string {
	var segs []string
	for r := ref; r != t.root; r = t.Node(r).parent {
		segs = append([]string{t.Node(r).Name}, segs...)
	}
	return segs
}

func (t *Tree) String() string {
	var b strings.Builder
	var walk func(ref NodeRef, depth int)
	walk = func(ref NodeRef, depth int) {
		n := t.Node(ref)
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		b.WriteByte('\n')
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	for _, c := range t.Root().children {
		walk(c, 0)
	}
	return b.String()
}
