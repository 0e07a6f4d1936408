// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danos/rtrmgr/schema"
)

func TestLoadSignatureDB(t *testing.T) {
	dir := t.TempDir()
	text := `
# interface manager methods
ifmgr/0.1/create_interface?ifname:txt
ifmgr/0.1/get_status -> status:u32&reason:txt
common/0.1/shutdown
`
	if err := os.WriteFile(filepath.Join(dir, "ifmgr.sig"), []byte(text), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	db, err := schema.LoadSignatureDB(dir)
	if err != nil {
		t.Fatalf("Unexpected load failure: %v", err)
	}

	sig, ok := db.Lookup("ifmgr/0.1", "create_interface")
	if !ok {
		t.Fatalf("create_interface not found")
	}
	if len(sig.ArgNames) != 1 || sig.ArgNames[0] != "ifname" || sig.ArgTypes[0] != "txt" {
		t.Fatalf("Unexpected signature: %+v", sig)
	}

	sig, ok = db.Lookup("ifmgr/0.1", "get_status")
	if !ok || len(sig.RetNames) != 2 {
		t.Fatalf("get_status return atoms wrong: %+v", sig)
	}

	if _, ok := db.Lookup("common/0.1", "shutdown"); !ok {
		t.Fatalf("no-arg method not found")
	}
	if _, ok := db.Lookup("common/0.1", "restart"); ok {
		t.Fatalf("undeclared method found")
	}
}

func TestLoadSignatureDBRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.sig"),
		[]byte("notamethod\n"), 0644); err != nil {
		t.Fatalf("Unexpected write failure: %v", err)
	}
	_, err := schema.LoadSignatureDB(dir)
	if err == nil || !strings.Contains(err.Error(), "bad.sig:1") {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestSignatureValidateChecksAtoms(t *testing.T) {
	db := schema.NewCallSignatureDB()
	db.Add(&schema.CallSignature{
		Namespace: "rib/0.1",
		Method:    "add_route",
		ArgNames:  []string{"net", "nexthop"},
		ArgTypes:  []string{"ipv4net", "ipv4"},
		RetNames:  []string{"result"},
		RetTypes:  []string{"u32"},
	})

	rc := &schema.RemoteCallTemplate{
		Namespace: "rib/0.1",
		Method:    "add_route",
		Args: []schema.CallArg{
			{Name: "net", Type: "ipv4net"},
		},
		Returns: []schema.ReturnSpec{
			{Atom: "result", Type: "u32", Variable: "res"},
		},
	}
	if err := db.Validate(rc); err != nil {
		t.Fatalf("Unexpected validation failure: %v", err)
	}

	rc.Args = append(rc.Args, schema.CallArg{Name: "bogus", Type: "txt"})
	if err := db.Validate(rc); err == nil {
		t.Fatalf("unknown argument atom unexpectedly accepted")
	}

	rc.Args = rc.Args[:1]
	rc.Returns[0].Atom = "bogus"
	if err := db.Validate(rc); err == nil {
		t.Fatalf("unknown return atom unexpectedly accepted")
	}
}
