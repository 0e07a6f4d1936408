// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

// Save serializes the tree in the on-disk configuration grammar,
// starting with the marker line. Deleted nodes are omitted; placeholder
// instances are written with a quoted selector.
func (t *Tree) Save() string {
	var b strings.Builder
	b.WriteString(ConfigMarker)
	b.WriteByte('\n')
	writeBody(&b, t.root, 0)
	return b.String()
}

func writeBody(b *strings.Builder, n *Node, depth int) {
	for _, c := range n.Children {
		if c.Deleted {
			continue
		}
		writeNode(b, c, depth)
	}
}

func writeNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("    ", depth)
	if n.HasValue {
		fmt.Fprintf(b, "%s%s %s %s;\n", indent, n.Segment, n.Operator, quoteValue(n.Value))
		return
	}

	var plain, instances []*Node
	for _, c := range n.Children {
		if c.Deleted {
			continue
		}
		if sn := c.SchemaNode(); sn != nil && sn.IsPlaceholder {
			instances = append(instances, c)
		} else {
			plain = append(plain, c)
		}
	}

	if len(plain) > 0 || (len(instances) == 0 && len(plain) == 0) {
		fmt.Fprintf(b, "%s%s {\n", indent, n.Segment)
		for _, c := range plain {
			writeNode(b, c, depth+1)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	}
	for _, inst := range instances {
		fmt.Fprintf(b, "%s%s %q {\n", indent, n.Segment, inst.Segment)
		writeBody(b, inst, depth+1)
		fmt.Fprintf(b, "%s}\n", indent)
	}
}

func quoteValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"{};") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// SaveFile writes the tree to path. An existing file that does not
// begin with the marker line is refused rather than overwritten; the
// write goes through a temporary file in the same directory and a
// rename, so a crash never leaves a half-written configuration.
func (t *Tree) SaveFile(path string) error {
	if err := refuseNonMarkerFile(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return merror.NewIoError("%s: %s", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(t.Save()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return merror.NewIoError("%s: %s", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return merror.NewIoError("%s: %s", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return merror.NewIoError("%s: %s", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return merror.NewIoError("%s: %s", path, err)
	}
	return nil
}

func refuseNonMarkerFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return merror.NewIoError("%s: %s", path, err)
	}
	defer f.Close()
	line, _ := bufio.NewReader(f).ReadString('\n')
	if !strings.HasPrefix(strings.TrimSpace(line), ConfigMarker) {
		return merror.NewIoError("%s: refusing to overwrite a file without the configuration marker", path)
	}
	return nil
}

// LoadFile parses an on-disk configuration file into a fresh tree over
// the given schema.
func LoadFile(path string, st *schema.Tree) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merror.NewIoError("%s: %s", path, err)
	}
	t := New(st)
	if err := t.Parse(string(data), path); err != nil {
		return nil, err
	}
	return t, nil
}

// linkSchema attaches schema references to every node the parser
// created, rejecting nothing: validation against the schema happens in
// Validate, which callers run after parse.
func (t *Tree) linkSchema() {
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			if sn, ok := t.Schema.Find(c.Path()); ok {
				c.schema = t.Schema
				c.schemaNd = sn.Ref()
			}
			walk(c)
		}
	}
	walk(t.root)
}

// Validate checks every node against its schema: the segment must be
// admitted, a leaf's value must satisfy the %allow constraints, and its
// operator must be permitted.
func (t *Tree) Validate() error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		for _, c := range n.Children {
			sn := c.SchemaNode()
			if sn == nil {
				return merror.NewSchemaViolation(c.Path(), "no such configuration node")
			}
			if c.HasValue {
				if !sn.AllowsOperator(c.Operator) {
					return merror.NewSchemaViolation(c.Path(), "operator %s not permitted here", c.Operator)
				}
				if err := sn.AdmitsValue(c.Value); err != nil {
					return err
				}
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.root)
}
