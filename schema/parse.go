// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/danos/rtrmgr/merror"
)

// Load parses every ".tmpl" file in dir, builds the tree, resolves
// inter-file variable references and validates every remote-call action
// against sigdb (which may be nil). All files are read into one tree
// first; cross-file $(...) references are checked in a second pass,
// once the whole tree exists.
func Load(dir string, sigdb *CallSignatureDB) (*Tree, error) {
	files, err := schemaFiles(dir)
	if err != nil {
		return nil, merror.NewIoError("reading schema directory %s: %s", dir, err)
	}
	if len(files) == 0 {
		return nil, merror.NewParseError("%s: no schema files found", dir)
	}
	sort.Strings(files)

	t := newTree()
	t.sigdb = sigdb
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, merror.NewIoError("%s: %s", f, err)
		}
		p := newParser(f, string(data), t)
		if err := p.parseFile(t.root); err != nil {
			return nil, err
		}
	}

	if err := t.resolveVariableRefs(); err != nil {
		return nil, err
	}
	if err := t.validateActions(); err != nil {
		return nil, err
	}
	return t, nil
}

func schemaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".tmpl") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// resolveVariableRefs walks every node's declared Variables and records
// them in the tree-wide index, detecting duplicate declarations.
func (t *Tree) resolveVariableRefs() error {
	for _, n := range t.nodes {
		for _, v := range n.Variables {
			if existing, ok := t.variables[v]; ok && existing != n.ref {
				return merror.NewParseError("variable %q declared by both %v and %v", v, t.Path(existing), t.Path(n.ref))
			}
			t.variables[v] = n.ref
		}
	}
	// Second pass: every $(name) VarRef segment referenced by an action
	// template must resolve to a declared variable, except "@" (self)
	// and dotted paths (resolved against the configuration tree at
	// execution time, not here).
	var walk func(ref NodeRef) error
	walk = func(ref NodeRef) error {
		n := t.Node(ref)
		for _, binding := range n.Actions {
			for _, step := range binding.Steps {
				if err := t.checkActionVars(step); err != nil {
					return err
				}
			}
		}
		if n.Module != nil {
			for _, a := range []*Action{n.Module.StartCommit, n.Module.EndCommit,
				n.Module.StatusMethod, n.Module.StartupMethod, n.Module.ShutdownMethod} {
				if a != nil {
					if err := t.checkActionVars(a); err != nil {
						return err
					}
				}
			}
		}
		for _, c := range n.children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.root)
}

func (t *Tree) checkActionVars(a *Action) error {
	check := func(tmpl Template) error {
		for _, seg := range tmpl {
			if seg.Kind != SegVarRef {
				continue
			}
			if seg.VarRef == "@" || strings.Contains(seg.VarRef, ".") {
				continue // self-reference or path reference; resolved at runtime
			}
			if _, ok := t.variables[seg.VarRef]; !ok {
				return merror.NewParseError("reference to undefined variable %q", seg.VarRef)
			}
		}
		return nil
	}
	if a.IsProgram {
		if err := check(a.Program.Path); err != nil {
			return err
		}
		for _, arg := range a.Program.Args {
			if err := check(arg); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(a.Remote.Target); err != nil {
		return err
	}
	for _, arg := range a.Remote.Args {
		if err := check(arg.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) validateActions() error {
	for _, n := range t.nodes {
		for _, binding := range n.Actions {
			for _, step := range binding.Steps {
				if !step.IsProgram {
					if err := t.sigdb.Validate(step.Remote); err != nil {
						return merror.NewParseError("%s", err)
					}
				}
			}
		}
		if n.Module != nil {
			for _, a := range []*Action{n.Module.StartCommit, n.Module.EndCommit,
				n.Module.StatusMethod, n.Module.StartupMethod, n.Module.ShutdownMethod} {
				if a != nil && !a.IsProgram {
					if err := t.sigdb.Validate(a.Remote); err != nil {
						return merror.NewParseError("%s", err)
					}
				}
			}
		}
	}
	return nil
}

// --- lexer -----------------------------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokPercentWord // %allow, %modinfo, %create, ...
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokColon
	tokSemicolon
	tokComma
	tokEquals
	tokAt
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	file string
	src  []rune
	pos  int
	line int
}

func newLexer(file, src string) *lexer {
	return &lexer{file: file, src: []rune(src), line: 1}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return merror.NewParseError("%s:%d: %s", l.file, l.line, fmt.Sprintf(format, args...))
}

func (l *lexer) peekRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) advance() (rune, bool) {
	r, ok := l.peekRune()
	if !ok {
		return 0, false
	}
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r, true
}

func (l *lexer) skipSpaceAndComments() error {
	for {
		r, ok := l.peekRune()
		if !ok {
			return nil
		}
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			l.advance()
			continue
		}
		if r == '/' && l.pos+1 < len(l.src) {
			if l.src[l.pos+1] == '/' {
				for {
					r, ok := l.advance()
					if !ok || r == '\n' {
						break
					}
				}
				continue
			}
			if l.src[l.pos+1] == '*' {
				l.advance()
				l.advance()
				for {
					r, ok := l.advance()
					if !ok {
						return l.errorf("unterminated block comment")
					}
					if r == '*' {
						if r2, ok := l.peekRune(); ok && r2 == '/' {
							l.advance()
							break
						}
					}
				}
				continue
			}
		}
		return nil
	}
}

func isWordRune(r rune) bool {
	return r == '_' || r == '-' || r == '.' || r == '/' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	line := l.line
	r, ok := l.peekRune()
	if !ok {
		return token{kind: tokEOF, line: line}, nil
	}
	switch r {
	case '{':
		l.advance()
		return token{kind: tokLBrace, line: line}, nil
	case '}':
		l.advance()
		return token{kind: tokRBrace, line: line}, nil
	case '(':
		l.advance()
		return token{kind: tokLParen, line: line}, nil
	case ')':
		l.advance()
		return token{kind: tokRParen, line: line}, nil
	case ':':
		l.advance()
		return token{kind: tokColon, line: line}, nil
	case ';':
		l.advance()
		return token{kind: tokSemicolon, line: line}, nil
	case ',':
		l.advance()
		return token{kind: tokComma, line: line}, nil
	case '=':
		l.advance()
		return token{kind: tokEquals, line: line}, nil
	case '@':
		l.advance()
		return token{kind: tokAt, line: line}, nil
	case '"':
		l.advance()
		var b strings.Builder
		for {
			r, ok := l.advance()
			if !ok {
				return token{}, l.errorf("unterminated string")
			}
			if r == '\\' {
				if r2, ok := l.advance(); ok {
					b.WriteRune(r2)
				}
				continue
			}
			if r == '"' {
				break
			}
			b.WriteRune(r)
		}
		return token{kind: tokString, text: b.String(), line: line}, nil
	case '%':
		l.advance()
		var b strings.Builder
		for {
			r, ok := l.peekRune()
			if !ok || !isWordRune(r) {
				break
			}
			b.WriteRune(r)
			l.advance()
		}
		if b.Len() == 0 {
			return token{}, l.errorf("bare %% with no keyword")
		}
		return token{kind: tokPercentWord, text: b.String(), line: line}, nil
	}
	if isWordRune(r) {
		var b strings.Builder
		for {
			r, ok := l.peekRune()
			if !ok || !isWordRune(r) {
				break
			}
			b.WriteRune(r)
			l.advance()
		}
		return token{kind: tokWord, text: b.String(), line: line}, nil
	}
	return token{}, l.errorf("unexpected character %q", r)
}

// --- parser ------------------------------------------------------------

type parser struct {
	file string
	lex  *lexer
	tok  token
	tree *Tree
}

func newParser(file, src string, tree *Tree) *parser {
	return &parser{file: file, lex: newLexer(file, src), tree: tree}
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return merror.NewParseError("%s:%d: %s", p.file, p.tok.line, fmt.Sprintf(format, args...))
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(k tokenKind) (token, error) {
	if p.tok.kind != k {
		return token{}, p.errorf("unexpected token %q", p.tok.text)
	}
	t := p.tok
	return t, p.advance()
}

// parseFile reads a whole schema file's top-level block list into the
// tree under parent (the tree root).
func (p *parser) parseFile(parent NodeRef) error {
	if err := p.advance(); err != nil {
		return err
	}
	return p.parseBlockBody(parent)
}

// parseBlockBody parses a sequence of leaf/container/action declarations
// until EOF or a closing brace (the brace itself is consumed by the
// caller).
func (p *parser) parseBlockBody(parent NodeRef) error {
	for {
		switch p.tok.kind {
		case tokEOF, tokRBrace:
			return nil
		case tokPercentWord:
			if err := p.parseClause(parent); err != nil {
				return err
			}
		case tokAt:
			if err := p.parsePlaceholder(parent); err != nil {
				return err
			}
		case tokWord:
			if err := p.parseNamedDecl(parent); err != nil {
				return err
			}
		default:
			return p.errorf("unexpected token in block body")
		}
	}
}

func (p *parser) parsePlaceholder(parent NodeRef) error {
	if err := p.advance(); err != nil { // consume '@'
		return err
	}
	if _, err := p.expect(tokColon); err != nil {
		return err
	}
	typeTok, err := p.expect(tokWord)
	if err != nil {
		return err
	}
	vt, ok := ParseValueType(typeTok.text)
	if !ok {
		return p.errorf("unknown type %q", typeTok.text)
	}
	ref := p.tree.newNode(parent, "@", true)
	n := p.tree.Node(ref)
	n.Type = vt
	if p.tok.kind == tokLBrace {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseBlockBody(ref); err != nil {
			return err
		}
		if _, err := p.expect(tokRBrace); err != nil {
			return err
		}
	} else if _, err := p.expect(tokSemicolon); err != nil {
		return err
	}
	return nil
}

func (p *parser) parseNamedDecl(parent NodeRef) error {
	nameTok, err := p.expect(tokWord)
	if err != nil {
		return err
	}
	name := nameTok.text

	if p.tok.kind == tokLBrace {
		if err := p.advance(); err != nil {
			return err
		}
		ref := p.tree.newNode(parent, name, false)
		if err := p.parseBlockBody(ref); err != nil {
			return err
		}
		_, err := p.expect(tokRBrace)
		return err
	}

	if _, err := p.expect(tokColon); err != nil {
		return err
	}
	typeTok, err := p.expect(tokWord)
	if err != nil {
		return err
	}
	vt, ok := ParseValueType(typeTok.text)
	if !ok {
		return p.errorf("unknown type %q", typeTok.text)
	}
	ref := p.tree.newNode(parent, name, false)
	n := p.tree.Node(ref)
	n.Type = vt

	for p.tok.kind != tokSemicolon {
		switch {
		case p.tok.kind == tokEquals:
			if err := p.advance(); err != nil {
				return err
			}
			valTok, err := p.expectValueToken()
			if err != nil {
				return err
			}
			n.HasDefault = true
			n.Default = valTok
		case p.tok.kind == tokPercentWord:
			if err := p.parseLeafClause(n); err != nil {
				return err
			}
		default:
			return p.errorf("unexpected token %q in leaf declaration", p.tok.text)
		}
	}
	// every clause is parsed; the default, if any, must itself satisfy
	// the node's %allow/%allow-range constraints
	if n.HasDefault {
		if err := n.AdmitsValue(n.Default); err != nil {
			return p.errorf("default value %q not permitted by %%allow constraints on %s",
				n.Default, name)
		}
	}
	return p.advance() // consume ';'
}

func (p *parser) expectValueToken() (string, error) {
	if p.tok.kind != tokWord && p.tok.kind != tokString {
		return "", p.errorf("expected a value")
	}
	v := p.tok.text
	return v, p.advance()
}

func (p *parser) parseLeafClause(n *Node) error {
	kw := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}
	switch kw {
	case "help":
		if _, err := p.expect(tokColon); err != nil {
			return err
		}
		s, err := p.expect(tokString)
		if err != nil {
			return err
		}
		n.Help = s.text
	case "var":
		// declares a name other nodes' actions may reference as $(name)
		if _, err := p.expect(tokColon); err != nil {
			return err
		}
		v, err := p.expect(tokWord)
		if err != nil {
			return err
		}
		n.Variables = append(n.Variables, v.text)
	case "allow":
		if _, err := p.expect(tokLBrace); err != nil {
			return err
		}
		for p.tok.kind != tokRBrace {
			v, err := p.expectValueToken()
			if err != nil {
				return err
			}
			help := ""
			if p.tok.kind == tokString {
				help = p.tok.text
				if err := p.advance(); err != nil {
					return err
				}
			}
			n.Allowed = append(n.Allowed, AllowedValue{Value: v, Help: help})
			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return err
				}
			}
		}
		if err := p.advance(); err != nil { // consume '}'
			return err
		}
	case "allow-range":
		if _, err := p.expect(tokLBrace); err != nil {
			return err
		}
		for p.tok.kind != tokRBrace {
			rangeTok, err := p.expect(tokWord)
			if err != nil {
				return err
			}
			lo, hi, err := parseRange(rangeTok.text)
			if err != nil {
				return p.errorf("%s", err)
			}
			help := ""
			if p.tok.kind == tokString {
				help = p.tok.text
				if err := p.advance(); err != nil {
					return err
				}
			}
			n.AllowedRanges = append(n.AllowedRanges, AllowedRange{Low: lo, High: hi, Help: help})
			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return err
				}
			}
		}
		if err := p.advance(); err != nil {
			return err
		}
	case "allow-operator":
		if _, err := p.expect(tokLBrace); err != nil {
			return err
		}
		for p.tok.kind != tokRBrace {
			opTok, err := p.opToken()
			if err != nil {
				return err
			}
			op, ok := ParseOperator(opTok)
			if !ok {
				return p.errorf("unknown operator %q", opTok)
			}
			n.AllowedOperator[op] = true
			if p.tok.kind == tokComma {
				if err := p.advance(); err != nil {
					return err
				}
			}
		}
		if err := p.advance(); err != nil {
			return err
		}
	default:
		return p.errorf("unknown leaf clause %%%s", kw)
	}
	return nil
}

// opToken reads an operator: a word, "=", or ":=" (which the lexer emits
// as ':' then '='). No other operator can be written in a schema file:
// the lexer has no token for '!', '<', '>', '+' or '*', and reads "-="
// and "/=" as the word "-" or "/" followed by '='.
func (p *parser) opToken() (string, error) {
	switch p.tok.kind {
	case tokWord:
		t := p.tok.text
		return t, p.advance()
	case tokEquals:
		return "=", p.advance()
	case tokColon:
		// ":=" — lexer emits ':' then '='
		if err := p.advance(); err != nil {
			return "", err
		}
		if p.tok.kind != tokEquals {
			return "", p.errorf("expected '=' after ':'")
		}
		return ":=", p.advance()
	}
	return "", p.errorf("expected operator token")
}

func parseRange(s string) (int64, int64, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad range %q, expected lo-hi", s)
	}
	lo, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	hi, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// parseClause handles %create/%activate/.../%modinfo at block level.
func (p *parser) parseClause(parent NodeRef) error {
	kw := p.tok.text
	if kw == "modinfo" {
		return p.parseModinfo(parent)
	}
	clause, ok := parseClauseKind(kw)
	if !ok {
		return p.errorf("unknown action clause %%%s", kw)
	}
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.expect(tokColon); err != nil {
		return err
	}
	steps, err := p.parseActionSteps()
	if err != nil {
		return err
	}
	n := p.tree.Node(parent)
	if n.Actions == nil {
		n.Actions = make(map[ClauseKind]*ActionBinding)
	}
	n.Actions[clause] = &ActionBinding{Clause: clause, Steps: steps}
	return nil
}

// parseActionSteps parses a comma-chained list of "xrl \"...\"" /
// "program \"...\"" actions terminated by ';'.
func (p *parser) parseActionSteps() ([]*Action, error) {
	var out []*Action
	for {
		kindTok, err := p.expect(tokWord)
		if err != nil {
			return nil, err
		}
		strTok, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		action, err := p.buildAction(kindTok.text, strTok.text)
		if err != nil {
			return nil, err
		}
		out = append(out, action)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokSemicolon); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) buildAction(kind, text string) (*Action, error) {
	switch kind {
	case "xrl":
		rc, err := parseRemoteCallTemplate(text)
		if err != nil {
			return nil, p.errorf("%s", err)
		}
		return &Action{Remote: rc}, nil
	case "program":
		pt, err := parseProgramTemplate(text)
		if err != nil {
			return nil, p.errorf("%s", err)
		}
		return &Action{IsProgram: true, Program: pt}, nil
	}
	return nil, p.errorf("unknown action kind %q (expected xrl or program)", kind)
}

// parseModinfo parses a %modinfo { ... } block attached to parent.
func (p *parser) parseModinfo(parent NodeRef) error {
	if err := p.advance(); err != nil { // consume "modinfo"
		return err
	}
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	mb := &ModuleBinding{node: int(parent)}
	for p.tok.kind != tokRBrace {
		kwTok, err := p.expect(tokWord)
		if err != nil {
			return err
		}
		switch kwTok.text {
		case "provides":
			v, err := p.expect(tokWord)
			if err != nil {
				return err
			}
			mb.ModuleName = v.text
		case "depends":
			v, err := p.expect(tokWord)
			if err != nil {
				return err
			}
			mb.DependsOn = append(mb.DependsOn, v.text)
		case "path":
			v, err := p.expect(tokString)
			if err != nil {
				return err
			}
			mb.ExecutablePath = v.text
		case "default_targetname":
			v, err := p.expect(tokWord)
			if err != nil {
				return err
			}
			mb.DefaultTargetName = v.text
		case "start_commit", "end_commit", "status_method", "startup_method", "shutdown_method":
			if _, err := p.expect(tokColon); err != nil {
				return err
			}
			steps, err := p.parseActionSteps()
			if err != nil {
				return err
			}
			if len(steps) != 1 {
				return p.errorf("%s takes exactly one action", kwTok.text)
			}
			switch kwTok.text {
			case "start_commit":
				mb.StartCommit = steps[0]
			case "end_commit":
				mb.EndCommit = steps[0]
			case "status_method":
				mb.StatusMethod = steps[0]
			case "startup_method":
				mb.StartupMethod = steps[0]
			case "shutdown_method":
				mb.ShutdownMethod = steps[0]
			}
			continue // parseActionSteps already consumed the ';'
		default:
			return p.errorf("unknown %%modinfo field %q", kwTok.text)
		}
		if _, err := p.expect(tokSemicolon); err != nil {
			return err
		}
	}
	if err := p.advance(); err != nil { // consume '}'
		return err
	}
	if mb.ModuleName == "" {
		return p.errorf("%%modinfo block missing 'provides'")
	}
	if _, dup := p.tree.modules[mb.ModuleName]; dup {
		return p.errorf("duplicate module %q", mb.ModuleName)
	}
	p.tree.modules[mb.ModuleName] = mb
	p.tree.Node(parent).Module = mb
	return nil
}
