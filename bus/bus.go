// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package bus defines the remote-call bus the core depends on to reach
// daemons. The core never talks to a transport directly; it depends
// only on this interface and the error classification below.
package bus

import (
	"context"
	"fmt"

	"github.com/danos/rtrmgr/merror"
)

// Atom is a single typed argument or return value exchanged with a
// module over the bus.
type Atom struct {
	Name  string
	Type  string // i32, u32, ipv4, ipv4net, ipv6, ipv6net, mac, text, list, bool, binary
	Value string
}

// Request is a single remote-call invocation, already expanded (no
// remaining $(var) references).
type Request struct {
	Target    string
	Namespace string
	Method    string
	Args      []Atom
}

// Reply carries the atoms a module returned, addressed by name.
type Reply struct {
	Atoms []Atom
}

func (r *Reply) Get(name string) (string, bool) {
	for _, a := range r.Atoms {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// WireError is the closed error taxonomy the bus is allowed to return.
type WireError int

const (
	ErrNone WireError = iota
	ErrResolveFailed
	ErrSendFailedTransient
	ErrSendFailed
	ErrReplyTimedOut
	ErrNoSuchMethod
	ErrBadArgs
	ErrCommandFailed
	ErrNoFinder
)

func (w WireError) String() string {
	switch w {
	case ErrResolveFailed:
		return "RESOLVE_FAILED"
	case ErrSendFailedTransient:
		return "SEND_FAILED_TRANSIENT"
	case ErrSendFailed:
		return "SEND_FAILED"
	case ErrReplyTimedOut:
		return "REPLY_TIMED_OUT"
	case ErrNoSuchMethod:
		return "NO_SUCH_METHOD"
	case ErrBadArgs:
		return "BAD_ARGS"
	case ErrCommandFailed:
		return "COMMAND_FAILED"
	case ErrNoFinder:
		return "NO_FINDER"
	}
	return "NONE"
}

// CallError wraps a WireError as a Go error and classifies it into the
// merror taxonomy so callers (the action layer) can decide whether to
// retry.
type CallError struct {
	Wire WireError
	Text string
}

func (e *CallError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s: %s", e.Wire, e.Text)
	}
	return e.Wire.String()
}

// Classify maps a bus wire error onto the merror taxonomy.
func Classify(err error) *merror.Error {
	ce, ok := err.(*CallError)
	if !ok {
		return merror.NewFatalBus("%s", err)
	}
	switch ce.Wire {
	case ErrResolveFailed, ErrSendFailedTransient, ErrReplyTimedOut:
		return merror.NewTransientBus("%s", ce)
	case ErrNoSuchMethod, ErrBadArgs, ErrCommandFailed:
		return merror.NewPermanentBus("%s", ce)
	case ErrNoFinder, ErrSendFailed:
		return merror.NewFatalBus("%s", ce)
	}
	return merror.NewFatalBus("%s", ce)
}

// Bus is the transport the action layer and task manager depend on.
// Implementations must be safe for concurrent use; the default
// implementation (Client, in this package) dials a fresh vci connection
// for every call.
type Bus interface {
	Call(ctx context.Context, req Request) (*Reply, error)
}
