// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package merror

import (
	"strings"
	"testing"
)

func TestKindNames(t *testing.T) {
	cases := map[Kind]string{
		KindParse:              "ParseError",
		KindSchemaViolation:    "SchemaViolation",
		KindUnresolvedVariable: "UnresolvedVariable",
		KindDependencyCycle:    "DependencyCycle",
		KindCommitInProgress:   "CommitInProgress",
		KindNodeLocked:         "NodeLocked",
		KindTransientBus:       "TransientBus",
		KindPermanentBus:       "PermanentBus",
		KindFatalBus:           "FatalBus",
		KindProcessFailure:     "ProcessFailure",
		KindIoError:            "IoError",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Unexpected name for kind %d: %s", k, got)
		}
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := NewTransientBus("timed out")
	if !Is(err, KindTransientBus) {
		t.Fatalf("Is failed on matching kind")
	}
	if Is(err, KindFatalBus) {
		t.Fatalf("Is matched wrong kind")
	}
	if Is(nil, KindFatalBus) {
		t.Fatalf("Is matched nil error")
	}
}

func TestErrorTextCarriesPath(t *testing.T) {
	err := NewSchemaViolation([]string{"interfaces", "eth0"}, "bad value")
	if !strings.Contains(err.Error(), "interfaces") ||
		!strings.Contains(err.Error(), "bad value") {
		t.Fatalf("Unexpected error text: %s", err)
	}
}

func TestUnresolvedVariableNamesVariable(t *testing.T) {
	err := NewUnresolvedVariable(nil, "a.b.c")
	if !strings.Contains(err.Error(), `"a.b.c"`) {
		t.Fatalf("Unexpected error text: %s", err)
	}
}
