// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema

// CallArg is one templated argument of a RemoteCallTemplate:
// "arg1:type=$(var1)".
type CallArg struct {
	Name  string
	Type  string
	Value Template
}

// ReturnSpec is one entry of a RemoteCallTemplate's return-spec:
// "retval:type=$varname" — the atom named Atom in the reply is written
// back into the configuration variable Variable.
type ReturnSpec struct {
	Atom     string
	Type     string
	Variable string
}

// RemoteCallTemplate is a templated request of the form
//
//	target/namespace/method?arg1:type=$(var1)&arg2:type=$(var2) -> retval:type=$varname
type RemoteCallTemplate struct {
	Target    Template
	Namespace string
	Method    string
	Args      []CallArg
	Returns   []ReturnSpec
}

// ProgramTemplate is a templated shell-form program invocation:
//
//	path/to/prog arg1 arg2 -> stdout=$var_out stderr=$var_err
type ProgramTemplate struct {
	Path      Template
	Args      []Template
	StdoutVar string
	StderrVar string
}

// Action is a tagged sum: a remote call or a program invocation.
// Dispatch is by the IsProgram tag.
type Action struct {
	IsProgram bool
	Remote    *RemoteCallTemplate
	Program   *ProgramTemplate
}

func (a *Action) String() string {
	if a == nil {
		return "<nil action>"
	}
	if a.IsProgram {
		return a.Program.Path.String()
	}
	return a.Remote.Target.String() + "/" + a.Remote.Namespace + "/" + a.Remote.Method
}

// ActionBinding is a chainable (comma-separated) list of actions bound
// to one clause kind (%create, %activate, ...) on a schema node.
type ActionBinding struct {
	Clause ClauseKind
	Steps  []*Action
}

// ModuleBinding records a %modinfo clause: the subtree it is attached to
// represents a module with this name, default bus target, up to five
// lifecycle methods, and a list of modules it depends on.
type ModuleBinding struct {
	ModuleName        string
	DependsOn         []string
	ExecutablePath    string
	DefaultTargetName string

	StartCommit   *Action
	EndCommit     *Action
	StatusMethod  *Action
	StartupMethod *Action
	ShutdownMethod *Action

	// node is the schema node index the %modinfo clause was declared on;
	// used to resolve which configuration subtree belongs to this
	// module when diffing.
	node int
}

func (m *ModuleBinding) Name() string { return m.ModuleName }

// NodeRef returns the schema node the %modinfo clause was declared on.
func (m *ModuleBinding) NodeRef() NodeRef { return NodeRef(m.node) }

// CallSignature is one entry of the remote-call signature database: the
// argument and return atom names/types a given namespace/method
// accepts, used to validate RemoteCallTemplate bindings at schema load
// time.
type CallSignature struct {
	Namespace string
	Method    string
	ArgNames  []string
	ArgTypes  []string
	RetNames  []string
	RetTypes  []string
}

// CallSignatureDB is consulted by Load to reject a RemoteCallAction whose
// method does not exist or whose argument/return atoms don't match.
type CallSignatureDB struct {
	sigs map[string]*CallSignature
}

func NewCallSignatureDB() *CallSignatureDB {
	return &CallSignatureDB{sigs: make(map[string]*CallSignature)}
}

func (db *CallSignatureDB) Add(sig *CallSignature) {
	db.sigs[db.key(sig.Namespace, sig.Method)] = sig
}

func (db *CallSignatureDB) key(ns, method string) string { return ns + "/" + method }

func (db *CallSignatureDB) Lookup(ns, method string) (*CallSignature, bool) {
	sig, ok := db.sigs[db.key(ns, method)]
	return sig, ok
}

// Validate checks that rc's declared args/returns appear in the
// signature database, if one was supplied at Load time. A nil db always
// passes, so a schema may be loaded without one during development.
func (db *CallSignatureDB) Validate(rc *RemoteCallTemplate) error {
	if db == nil {
		return nil
	}
	sig, ok := db.Lookup(rc.Namespace, rc.Method)
	if !ok {
		return &signatureError{rc: rc, reason: "no such method in signature database"}
	}
	for _, a := range rc.Args {
		if !containsName(sig.ArgNames, a.Name) {
			return &signatureError{rc: rc, reason: "unknown argument atom " + a.Name}
		}
	}
	for _, r := range rc.Returns {
		if !containsName(sig.RetNames, r.Atom) {
			return &signatureError{rc: rc, reason: "unknown return atom " + r.Atom}
		}
	}
	return nil
}

func containsName(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}

type signatureError struct {
	rc     *RemoteCallTemplate
	reason string
}

func (e *signatureError) Error() string {
	return e.rc.Namespace + "/" + e.rc.Method + ": " + e.reason
}
