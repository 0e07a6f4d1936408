// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package config

// Diff compares this tree against a baseline and produces two trees:
// delta holds every node that is new or carries a different value or
// operator than the baseline; deletion holds every subtree present in
// the baseline but absent (or marked deleted) here. Applying deletion
// then delta to the baseline reproduces this tree.
func (t *Tree) Diff(other *Tree) (delta, deletion *Tree) {
	delta = New(t.Schema)
	delta.ExprEval = t.ExprEval
	deletion = New(t.Schema)
	deletion.ExprEval = t.ExprEval

	var walkDelta func(c, b *Node)
	walkDelta = func(c, b *Node) {
		for _, cc := range c.Children {
			if cc.Deleted {
				continue
			}
			var bb *Node
			if b != nil {
				bb = b.child(cc.Segment)
			}
			if bb == nil {
				delta.graft(cc, true, false)
				continue
			}
			if cc.HasValue != bb.HasValue || cc.Value != bb.Value ||
				cc.Operator != bb.Operator {
				delta.graft(cc, false, false)
			}
			walkDelta(cc, bb)
		}
	}
	walkDelta(t.root, other.root)

	var walkDeletion func(b, c *Node)
	walkDeletion = func(b, c *Node) {
		for _, bb := range b.Children {
			if bb.Deleted {
				continue
			}
			var cc *Node
			if c != nil {
				cc = c.child(bb.Segment)
			}
			if cc == nil {
				deletion.graft(bb, true, true)
				continue
			}
			walkDeletion(bb, cc)
		}
	}
	walkDeletion(other.root, t.root)

	return delta, deletion
}

// graft copies src (and, if deep, its non-deleted subtree) into the
// tree, creating any missing ancestors as plain containers. markDeleted
// flags the copied subtree, which is how a deletion tree records what
// is gone rather than what changed.
func (t *Tree) graft(src *Node, deep, markDeleted bool) {
	path := src.Path()
	parent := t.root
	for _, seg := range path[:len(path)-1] {
		c := parent.childEvenDeleted(seg)
		if c == nil {
			c = &Node{id: nextNodeID(), Segment: seg, Parent: parent}
			if sn, ok := t.Schema.Find(c.Path()); ok {
				c.schema = t.Schema
				c.schemaNd = sn.Ref()
			}
			parent.Children = append(parent.Children, c)
		}
		parent = c
	}

	var copyNode func(src *Node, parent *Node)
	copyNode = func(src *Node, parent *Node) {
		dst := parent.childEvenDeleted(src.Segment)
		if dst == nil {
			dst = &Node{id: nextNodeID(), Segment: src.Segment, Parent: parent}
			parent.Children = append(parent.Children, dst)
		}
		dst.schema = src.schema
		dst.schemaNd = src.schemaNd
		dst.Value = src.Value
		dst.HasValue = src.HasValue
		dst.Operator = src.Operator
		dst.ModifierID = src.ModifierID
		dst.Deleted = markDeleted
		if !deep {
			return
		}
		for _, c := range src.Children {
			if c.Deleted {
				continue
			}
			copyNode(c, dst)
		}
	}
	copyNode(src, parent)
}

// ApplyDeltas replays every node of a delta tree onto this tree. Leaf
// values go through Set so schema validation still applies; containers
// are created for presence alone.
func (t *Tree) ApplyDeltas(delta *Tree) error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		for _, c := range n.Children {
			if c.HasValue {
				if err := t.Set(c.Path(), c.Value, c.Operator, c.ModifierID); err != nil {
					return err
				}
			} else {
				t.ensurePath(c.Path(), c.ModifierID)
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(delta.root)
}

// ApplyDeletions deletes from this tree every subtree a deletion tree
// marks. Only the topmost marked node of each subtree is deleted; its
// descendants go with it.
func (t *Tree) ApplyDeletions(deletion *Tree) error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		for _, c := range n.Children {
			if c.Deleted {
				if err := t.Delete(c.Path(), c.ModifierID); err != nil {
					return err
				}
				continue
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(deletion.root)
}

// Equal reports semantic equality with another tree: the same set of
// non-deleted nodes with the same values and operators, regardless of
// child order.
func (t *Tree) Equal(other *Tree) bool {
	return nodesEqual(t.root, other.root)
}

func nodesEqual(a, b *Node) bool {
	if a.HasValue != b.HasValue || a.Value != b.Value || a.Operator != b.Operator {
		return false
	}
	an, bn := 0, 0
	for _, c := range a.Children {
		if !c.Deleted {
			an++
		}
	}
	for _, c := range b.Children {
		if !c.Deleted {
			bn++
		}
	}
	if an != bn {
		return false
	}
	for _, ac := range a.Children {
		if ac.Deleted {
			continue
		}
		bc := b.child(ac.Segment)
		if bc == nil || !nodesEqual(ac, bc) {
			return false
		}
	}
	return true
}
