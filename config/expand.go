// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package config

import (
	"strings"

	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

// LookupRoute resolves a literal path to the configuration node that
// holds it, skipping deleted nodes.
func (t *Tree) LookupRoute(path []string) (*Node, bool) {
	return t.Find(path)
}

// ExpandVariable resolves a $(name) reference at node "at".
//
//	$(@)        the node's own key (the concrete segment of the nearest
//	            placeholder instance above or at the node)
//	$(@.x.y)    path relative to the node
//	$(a.b.c)    absolute path against the tree
//	$(foo)      a writeback variable stored on the node by an earlier
//	            action, or a variable declared by a schema node
func (t *Tree) ExpandVariable(name string, at *Node) (string, bool) {
	if name == "@" {
		if at == nil {
			return "", false
		}
		return at.Key(), true
	}
	if rest, ok := strings.CutPrefix(name, "@."); ok {
		if at == nil {
			return "", false
		}
		n, found := t.findFrom(at, strings.Split(rest, "."))
		if !found {
			return "", false
		}
		return n.stringForm(), true
	}
	if strings.Contains(name, ".") {
		n, found := t.Find(strings.Split(name, "."))
		if !found {
			return "", false
		}
		return n.stringForm(), true
	}
	if at != nil {
		if v, ok := at.Var(name); ok {
			return v, true
		}
	}
	sn, ok := t.Schema.FindByVariable(name)
	if !ok {
		return "", false
	}
	n, found := t.findBySchemaPath(t.Schema.Path(sn.Ref()), at)
	if !found {
		return "", false
	}
	return n.stringForm(), true
}

// ExpandExpression resolves a back-tick `expression` via the evaluator
// the host supplied; the core has no expression language of its own.
func (t *Tree) ExpandExpression(expr string) (string, error) {
	if t.ExprEval == nil {
		return "", merror.NewParseError("no expression evaluator configured for `%s`", expr)
	}
	return t.ExprEval(expr)
}

// ExpandTemplate substitutes a parsed template at node "at". An
// unresolved variable fails the whole expansion, per the action layer
// contract.
func (t *Tree) ExpandTemplate(tmpl schema.Template, at *Node) (string, error) {
	var b strings.Builder
	for _, seg := range tmpl {
		switch seg.Kind {
		case schema.SegLiteral:
			b.WriteString(seg.Literal)
		case schema.SegVarRef:
			v, ok := t.ExpandVariable(seg.VarRef, at)
			if !ok {
				var path []string
				if at != nil {
					path = at.Path()
				}
				return "", merror.NewUnresolvedVariable(path, seg.VarRef)
			}
			b.WriteString(v)
		case schema.SegExpr:
			v, err := t.ExpandExpression(seg.Expr)
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		}
	}
	return b.String(), nil
}

// findFrom walks path segments starting at a node instead of the root.
func (t *Tree) findFrom(at *Node, path []string) (*Node, bool) {
	cur := at
	for _, seg := range path {
		c := cur.child(seg)
		if c == nil {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// findBySchemaPath resolves a schema path (which may contain "@"
// placeholder segments) to a configuration node. A placeholder segment
// is resolved against the corresponding segment of at's own path; a
// reference that crosses a placeholder outside at's lineage cannot be
// resolved without a selector and fails.
func (t *Tree) findBySchemaPath(spath []string, at *Node) (*Node, bool) {
	var atPath []string
	if at != nil {
		atPath = at.Path()
	}
	cur := t.root
	for i, seg := range spath {
		if seg == "@" {
			if i >= len(atPath) {
				return nil, false
			}
			seg = atPath[i]
		}
		c := cur.child(seg)
		if c == nil {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// stringForm is the value a node contributes to a variable expansion:
// its value for a leaf, its own segment for a container or placeholder
// instance.
func (n *Node) stringForm() string {
	if n.HasValue {
		return n.Value
	}
	return n.Segment
}
