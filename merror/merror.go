// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package merror implements the structured error taxonomy of the
// router-manager core. Errors carry a Kind so callers (the commit engine,
// the task manager) can branch on recovery policy without string
// matching, while still satisfying the standard error interface.
package merror

import "fmt"

// Kind classifies an error for recovery purposes.
type Kind int

const (
	KindParse Kind = iota
	KindSchemaViolation
	KindUnresolvedVariable
	KindDependencyCycle
	KindCommitInProgress
	KindNodeLocked
	KindTransientBus
	KindPermanentBus
	KindFatalBus
	KindProcessFailure
	KindIoError
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindSchemaViolation:
		return "SchemaViolation"
	case KindUnresolvedVariable:
		return "UnresolvedVariable"
	case KindDependencyCycle:
		return "DependencyCycle"
	case KindCommitInProgress:
		return "CommitInProgress"
	case KindNodeLocked:
		return "NodeLocked"
	case KindTransientBus:
		return "TransientBus"
	case KindPermanentBus:
		return "PermanentBus"
	case KindFatalBus:
		return "FatalBus"
	case KindProcessFailure:
		return "ProcessFailure"
	case KindIoError:
		return "IoError"
	}
	return "unknown"
}

// Error is the concrete error type for every kind in the taxonomy. The
// Path, if set, is the configuration path the error refers to.
type Error struct {
	Kind    Kind
	Path    []string
	Message string
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s[%v]: %s", e.Kind, e.Path, e.Message)
}

func newError(k Kind, path []string, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Path: path, Message: fmt.Sprintf(format, args...)}
}

func NewParseError(format string, args ...interface{}) *Error {
	return newError(KindParse, nil, format, args...)
}

func NewSchemaViolation(path []string, format string, args ...interface{}) *Error {
	return newError(KindSchemaViolation, path, format, args...)
}

func NewUnresolvedVariable(path []string, name string) *Error {
	return newError(KindUnresolvedVariable, path, "unresolved variable %q", name)
}

func NewDependencyCycle(cycle []string) *Error {
	return newError(KindDependencyCycle, nil, "module dependency cycle: %v", cycle)
}

func NewCommitInProgress() *Error {
	return newError(KindCommitInProgress, nil, "a commit is already in progress")
}

func NewNodeLocked(path []string) *Error {
	return newError(KindNodeLocked, path, "node is locked by the in-flight commit")
}

func NewTransientBus(format string, args ...interface{}) *Error {
	return newError(KindTransientBus, nil, format, args...)
}

func NewPermanentBus(format string, args ...interface{}) *Error {
	return newError(KindPermanentBus, nil, format, args...)
}

func NewFatalBus(format string, args ...interface{}) *Error {
	return newError(KindFatalBus, nil, format, args...)
}

func NewProcessFailure(module string, format string, args ...interface{}) *Error {
	return newError(KindProcessFailure, []string{module}, format, args...)
}

func NewIoError(format string, args ...interface{}) *Error {
	return newError(KindIoError, nil, format, args...)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
