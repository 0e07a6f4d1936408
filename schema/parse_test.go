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

const mainTmpl = `
/* interfaces subsystem */
interfaces {
    %modinfo {
        provides interfaces;
        depends fea;
        path "/usr/local/xorp/libexec/xorp_ifmgr";
        default_targetname ifmgr;
        status_method: xrl "ifmgr/common/0.1/get_status -> status:u32=$st, reason:txt=$reason";
        shutdown_method: xrl "ifmgr/common/0.1/shutdown";
    }
    interface {
        @: text {
            enabled: bool = false %help: "Enable the interface";
            mtu: uint32 = 1500 %allow-range { 68-9000 "standard MTU range" };
            description: text %allow-operator { = , := };
            %create: xrl "ifmgr/ifmgr/0.1/create_interface?ifname:txt=$(@)";
            %delete: xrl "ifmgr/ifmgr/0.1/delete_interface?ifname:txt=$(@)";
        }
    }
}

fea {
    %modinfo {
        provides fea;
        path "/usr/local/xorp/libexec/xorp_fea";
    }
}

finder {
    %modinfo {
        provides finder;
        path "/usr/local/xorp/libexec/xorp_finder";
    }
}

protocols {
    static {
        admin-distance: uint32 = 1 %allow-range { 0-255 "admin distance" };
        mode: text %allow { unicast "unicast routing", multicast "multicast routing" };
    }
}
`

func writeSchema(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0644); err != nil {
			t.Fatalf("Unexpected error writing %s: %v", name, err)
		}
	}
	return dir
}

func loadSchema(t *testing.T, files map[string]string) *schema.Tree {
	t.Helper()
	st, err := schema.Load(writeSchema(t, files), nil)
	if err != nil {
		t.Fatalf("Unexpected schema load failure: %v", err)
	}
	return st
}

func TestLoadSampleSchema(t *testing.T) {
	st := loadSchema(t, map[string]string{"main.tmpl": mainTmpl})

	if _, ok := st.Find([]string{"interfaces", "interface"}); !ok {
		t.Fatalf("interfaces/interface not found")
	}
	n, ok := st.Find([]string{"interfaces", "interface", "eth0", "enabled"})
	if !ok {
		t.Fatalf("placeholder child lookup failed")
	}
	if n.Type != schema.TypeBool || !n.HasDefault || n.Default != "false" {
		t.Fatalf("Unexpected enabled leaf: %+v", n)
	}
}

func TestLoadFinderModule(t *testing.T) {
	st := loadSchema(t, map[string]string{"main.tmpl": mainTmpl})

	mb, ok := st.ModuleByName("finder")
	if !ok {
		t.Fatalf("module finder not present")
	}
	if !strings.HasSuffix(mb.ExecutablePath, "xorp_finder") {
		t.Fatalf("Unexpected finder executable: %s", mb.ExecutablePath)
	}
	for _, m := range st.Modules() {
		if _, ok := st.ModuleByName(m.Name()); !ok {
			t.Fatalf("module %s not reachable by name", m.Name())
		}
	}
}

func TestModuleBindingMethods(t *testing.T) {
	st := loadSchema(t, map[string]string{"main.tmpl": mainTmpl})

	mb, _ := st.ModuleByName("interfaces")
	if mb.DefaultTargetName != "ifmgr" {
		t.Fatalf("Unexpected default target: %s", mb.DefaultTargetName)
	}
	if len(mb.DependsOn) != 1 || mb.DependsOn[0] != "fea" {
		t.Fatalf("Unexpected depends: %v", mb.DependsOn)
	}
	if mb.StatusMethod == nil || mb.StatusMethod.IsProgram {
		t.Fatalf("status_method not parsed as a remote call")
	}
	if got := len(mb.StatusMethod.Remote.Returns); got != 2 {
		t.Fatalf("Unexpected return spec count: %d", got)
	}
	if mb.StatusMethod.Remote.Returns[0].Variable != "st" {
		t.Fatalf("Unexpected writeback variable: %s",
			mb.StatusMethod.Remote.Returns[0].Variable)
	}
	if mb.StartupMethod != nil {
		t.Fatalf("startup_method unexpectedly present")
	}
}

func TestAllowedValuesAndRanges(t *testing.T) {
	st := loadSchema(t, map[string]string{"main.tmpl": mainTmpl})

	mtu, _ := st.Find([]string{"interfaces", "interface", "eth0", "mtu"})
	if err := mtu.AdmitsValue("1500"); err != nil {
		t.Fatalf("1500 should be admitted: %v", err)
	}
	if err := mtu.AdmitsValue("12"); err == nil {
		t.Fatalf("12 unexpectedly admitted")
	}

	mode, _ := st.Find([]string{"protocols", "static", "mode"})
	if err := mode.AdmitsValue("unicast"); err != nil {
		t.Fatalf("unicast should be admitted: %v", err)
	}
	if err := mode.AdmitsValue("broadcast"); err == nil {
		t.Fatalf("broadcast unexpectedly admitted")
	}
}

func TestAllowUnionOfValuesAndRanges(t *testing.T) {
	st := loadSchema(t, map[string]string{"u.tmpl": `
top {
    limit: uint32 %allow { unlimited "no limit" } %allow-range { 1-100 "bounded" };
}
`})
	n, _ := st.Find([]string{"top", "limit"})
	if err := n.AdmitsValue("unlimited"); err != nil {
		t.Fatalf("value from %%allow rejected: %v", err)
	}
	if err := n.AdmitsValue("50"); err != nil {
		t.Fatalf("value from %%allow-range rejected: %v", err)
	}
	if err := n.AdmitsValue("200"); err == nil {
		t.Fatalf("value outside union unexpectedly admitted")
	}
}

func TestDefaultOperatorIsSet(t *testing.T) {
	st := loadSchema(t, map[string]string{"main.tmpl": mainTmpl})

	enabled, _ := st.Find([]string{"interfaces", "interface", "eth0", "enabled"})
	if !enabled.AllowsOperator(schema.OpSet) {
		t.Fatalf("bare leaf should allow =")
	}
	if enabled.AllowsOperator(schema.OpAddEq) {
		t.Fatalf("bare leaf should not allow +=")
	}

	desc, _ := st.Find([]string{"interfaces", "interface", "eth0", "description"})
	if !desc.AllowsOperator(schema.OpSetOnce) {
		t.Fatalf("%%allow-operator { = , := } should allow :=")
	}
	if desc.AllowsOperator(schema.OpLess) {
		t.Fatalf("description should not allow <")
	}
}

func TestDefaultMustSatisfyAllowConstraints(t *testing.T) {
	_, err := schema.Load(writeSchema(t, map[string]string{"bad.tmpl": `
top {
    mtu: uint32 = 9999 %allow-range { 68-1500 "standard MTU range" };
}
`}), nil)
	if err == nil || !strings.Contains(err.Error(), "default value") {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err = schema.Load(writeSchema(t, map[string]string{"bad.tmpl": `
top {
    mode: text = broadcast %allow { unicast, multicast };
}
`}), nil)
	if err == nil || !strings.Contains(err.Error(), "default value") {
		t.Fatalf("Unexpected error: %v", err)
	}

	// a default inside the constraints still loads, whatever the clause
	// order
	st := loadSchema(t, map[string]string{"ok.tmpl": `
top {
    mtu: uint32 %allow-range { 68-1500 "standard MTU range" } = 1500;
}
`})
	n, _ := st.Find([]string{"top", "mtu"})
	if !n.HasDefault || n.Default != "1500" {
		t.Fatalf("Unexpected default: %+v", n)
	}
}

func TestDuplicateModuleRejected(t *testing.T) {
	_, err := schema.Load(writeSchema(t, map[string]string{"d.tmpl": `
a { %modinfo { provides dup; path "/bin/a"; } }
b { %modinfo { provides dup; path "/bin/b"; } }
`}), nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate module") {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestUndefinedVariableRejected(t *testing.T) {
	_, err := schema.Load(writeSchema(t, map[string]string{"v.tmpl": `
top {
    name: text;
    %create: xrl "tgt/iface/0.1/method?arg:txt=$(nosuchvar)";
}
`}), nil)
	if err == nil || !strings.Contains(err.Error(), "undefined variable") {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestDeclaredVariableResolves(t *testing.T) {
	st := loadSchema(t, map[string]string{"v.tmpl": `
top {
    name: text %var: topname;
    %create: xrl "tgt/iface/0.1/method?arg:txt=$(topname)";
}
`})
	n, ok := st.FindByVariable("topname")
	if !ok {
		t.Fatalf("variable topname did not resolve")
	}
	if n.Name != "name" {
		t.Fatalf("Unexpected owner node: %s", n.Name)
	}
}

func TestSignatureDatabaseValidation(t *testing.T) {
	text := map[string]string{"s.tmpl": `
top {
    name: text;
    %create: xrl "tgt/iface/0.1/method?arg:txt=$(@)";
}
`}
	db := schema.NewCallSignatureDB()
	if _, err := schema.Load(writeSchema(t, text), db); err == nil {
		t.Fatalf("unknown method unexpectedly accepted")
	}

	db.Add(&schema.CallSignature{
		Namespace: "iface/0.1",
		Method:    "method",
		ArgNames:  []string{"arg"},
		ArgTypes:  []string{"txt"},
	})
	if _, err := schema.Load(writeSchema(t, text), db); err != nil {
		t.Fatalf("Unexpected load failure with valid signature: %v", err)
	}
}

func TestSyntaxErrorNamesFileAndLine(t *testing.T) {
	_, err := schema.Load(writeSchema(t, map[string]string{"bad.tmpl": `
top {
    name: nosuchtype;
}
`}), nil)
	if err == nil {
		t.Fatalf("bad type unexpectedly accepted")
	}
	if !strings.Contains(err.Error(), "bad.tmpl:3") {
		t.Fatalf("error does not pinpoint file and line: %v", err)
	}
}
