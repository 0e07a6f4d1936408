// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package bus

import (
	"errors"
	"testing"

	"github.com/danos/rtrmgr/merror"
)

func TestClassifyTransient(t *testing.T) {
	for _, wire := range []WireError{ErrResolveFailed, ErrSendFailedTransient, ErrReplyTimedOut} {
		err := Classify(&CallError{Wire: wire})
		if err.Kind != merror.KindTransientBus {
			t.Fatalf("%s classified as %s, want TransientBus", wire, err.Kind)
		}
	}
}

func TestClassifyPermanent(t *testing.T) {
	for _, wire := range []WireError{ErrNoSuchMethod, ErrBadArgs, ErrCommandFailed} {
		err := Classify(&CallError{Wire: wire})
		if err.Kind != merror.KindPermanentBus {
			t.Fatalf("%s classified as %s, want PermanentBus", wire, err.Kind)
		}
	}
}

func TestClassifyFatal(t *testing.T) {
	for _, wire := range []WireError{ErrNoFinder, ErrSendFailed} {
		err := Classify(&CallError{Wire: wire})
		if err.Kind != merror.KindFatalBus {
			t.Fatalf("%s classified as %s, want FatalBus", wire, err.Kind)
		}
	}
}

func TestClassifyUnknownErrorIsFatal(t *testing.T) {
	err := Classify(errors.New("socket exploded"))
	if err.Kind != merror.KindFatalBus {
		t.Fatalf("foreign error classified as %s, want FatalBus", err.Kind)
	}
}

func TestReplyGetByName(t *testing.T) {
	r := &Reply{Atoms: []Atom{
		{Name: "status", Value: "3"},
		{Name: "reason", Value: "ok"},
	}}
	if v, ok := r.Get("reason"); !ok || v != "ok" {
		t.Fatalf("Unexpected atom: %q %v", v, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("missing atom unexpectedly found")
	}
}

func TestCallErrorText(t *testing.T) {
	e := &CallError{Wire: ErrReplyTimedOut, Text: "no answer in 30s"}
	if got := e.Error(); got != "REPLY_TIMED_OUT: no answer in 30s" {
		t.Fatalf("Unexpected error text: %q", got)
	}
	bare := &CallError{Wire: ErrNoFinder}
	if got := bare.Error(); got != "NO_FINDER" {
		t.Fatalf("Unexpected error text: %q", got)
	}
}
