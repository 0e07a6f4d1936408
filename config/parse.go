// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package config

import (
	"fmt"
	"strings"

	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

// ConfigMarker is the recognizable first line a loadable configuration
// file must carry. Parse rejects input without it, and SaveFile refuses
// to overwrite a file that doesn't start with it.
const ConfigMarker = "/* router configuration */"

// Parse accepts the on-disk configuration grammar: nested named blocks
// containing further blocks or "name <op> value;" assignments, with an
// optional placeholder selector like `interface "eth0" { ... }`.
func (t *Tree) Parse(text, sourceHint string) error {
	p := &configParser{file: sourceHint, runes: []rune(text)}
	if err := p.skipMarker(); err != nil {
		return err
	}
	if err := p.parseBody(t.root); err != nil {
		return err
	}
	t.linkSchema()
	return t.Validate()
}

type configParser struct {
	file string
	runes []rune
	pos   int
	line  int
}

func (p *configParser) errorf(format string, args ...interface{}) error {
	return merror.NewParseError("%s:%d: %s", p.file, p.line+1, fmt.Sprintf(format, args...))
}

func (p *configParser) skipMarker() error {
	s := string(p.runes)
	if !strings.HasPrefix(strings.TrimSpace(s), ConfigMarker) {
		return merror.NewParseError("%s: missing configuration marker line", p.file)
	}
	idx := strings.Index(s, "\n")
	if idx < 0 {
		idx = len(s)
	}
	p.runes = []rune(s[idx:])
	return nil
}

func (p *configParser) skipSpace() {
	for p.pos < len(p.runes) {
		r := p.runes[p.pos]
		if r == '\n' {
			p.line++
			p.pos++
			continue
		}
		if r == ' ' || r == '\t' || r == '\r' {
			p.pos++
			continue
		}
		if r == '/' && p.pos+1 < len(p.runes) && p.runes[p.pos+1] == '/' {
			for p.pos < len(p.runes) && p.runes[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *configParser) eof() bool {
	p.skipSpace()
	return p.pos >= len(p.runes)
}

func (p *configParser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.runes) {
		return 0
	}
	return p.runes[p.pos]
}

func (p *configParser) readWord() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.runes) && isConfigWordRune(p.runes[p.pos]) {
		p.pos++
	}
	return string(p.runes[start:p.pos])
}

func isConfigWordRune(r rune) bool {
	switch r {
	case '{', '}', ';', ' ', '\t', '\n', '\r', '"':
		return false
	}
	return true
}

func (p *configParser) readString() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.runes) || p.runes[p.pos] != '"' {
		return "", p.errorf("expected quoted string")
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.runes) && p.runes[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.runes) {
		return "", p.errorf("unterminated string")
	}
	s := string(p.runes[start:p.pos])
	p.pos++
	return s, nil
}

// parseBody parses a sequence of blocks/assignments under parent (a
// configuration node), until EOF or a closing '}' (consumed by caller).
func (p *configParser) parseBody(parent *Node) error {
	for {
		if p.eof() || p.peek() == '}' {
			return nil
		}
		name := p.readWord()
		if name == "" {
			return p.errorf("expected a name")
		}

		switch p.peek() {
		case '{':
			p.pos++
			child := parent.childEvenDeleted(name)
			if child == nil {
				child = &Node{id: nextNodeID(), Segment: name, Parent: parent, Committed: true}
				parent.Children = append(parent.Children, child)
			}
			if err := p.parseBody(child); err != nil {
				return err
			}
			if p.peek() != '}' {
				return p.errorf("expected '}'")
			}
			p.pos++
		case '"':
			// placeholder selector: name "key" { ... }
			key, err := p.readString()
			if err != nil {
				return err
			}
			if p.peek() != '{' {
				return p.errorf("expected '{' after placeholder selector")
			}
			p.pos++
			container := parent.childEvenDeleted(name)
			if container == nil {
				container = &Node{id: nextNodeID(), Segment: name, Parent: parent, Committed: true}
				parent.Children = append(parent.Children, container)
			}
			child := container.childEvenDeleted(key)
			if child == nil {
				child = &Node{id: nextNodeID(), Segment: key, Parent: container, Committed: true}
				container.Children = append(container.Children, child)
			}
			if err := p.parseBody(child); err != nil {
				return err
			}
			if p.peek() != '}' {
				return p.errorf("expected '}'")
			}
			p.pos++
		default:
			opText := p.readOperatorText()
			if opText == "" {
				return p.errorf("expected an operator after %q", name)
			}
			op, ok := schema.ParseOperator(opText)
			if !ok {
				return p.errorf("unknown operator %q", opText)
			}
			var value string
			if p.peek() == '"' {
				v, err := p.readString()
				if err != nil {
					return err
				}
				value = v
			} else {
				value = p.readWord()
			}
			if p.peek() != ';' {
				return p.errorf("expected ';' after assignment")
			}
			p.pos++
			child := parent.childEvenDeleted(name)
			if child == nil {
				child = &Node{id: nextNodeID(), Segment: name, Parent: parent}
				parent.Children = append(parent.Children, child)
			}
			child.Value = value
			child.HasValue = true
			child.Operator = op
			child.Committed = true
		}
	}
}

// readOperatorText reads one of the punctuation operator tokens
// (=, :=, !=, <, <=, >, >=, +=, -=, *=, /=) greedily.
func (p *configParser) readOperatorText() string {
	p.skipSpace()
	two := ""
	if p.pos+1 < len(p.runes) {
		two = string(p.runes[p.pos : p.pos+2])
	}
	for _, op := range []string{":=", "!=", "<=", ">=", "+=", "-=", "*=", "/="} {
		if two == op {
			p.pos += 2
			return op
		}
	}
	if p.pos < len(p.runes) {
		one := string(p.runes[p.pos])
		if one == "=" || one == "<" || one == ">" {
			p.pos++
			return one
		}
	}
	return ""
}
