// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danos/rtrmgr/merror"
)

// LoadSignatureDB reads every ".sig" file in dir into a signature
// database. Each non-comment line declares one callable method:
//
//	namespace/method?arg1:type&arg2:type -> ret1:type&ret2:type
//
// The argument and return lists may be empty.
func LoadSignatureDB(dir string) (*CallSignatureDB, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, merror.NewIoError("reading signature directory %s: %s", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sig" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	db := NewCallSignatureDB()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, merror.NewIoError("%s: %s", f, err)
		}
		for lineNo, line := range strings.Split(string(data), "\n") {
			if i := strings.Index(line, "#"); i >= 0 {
				line = line[:i]
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			sig, err := parseSignatureLine(line)
			if err != nil {
				return nil, merror.NewParseError("%s:%d: %s", f, lineNo+1, err)
			}
			db.Add(sig)
		}
	}
	return db, nil
}

func parseSignatureLine(line string) (*CallSignature, error) {
	head, retSpec, _ := strings.Cut(line, "->")
	head = strings.TrimSpace(head)

	path, argStr, _ := strings.Cut(head, "?")
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return nil, merror.NewParseError("expected namespace/method, got %q", path)
	}
	sig := &CallSignature{
		Namespace: path[:i],
		Method:    path[i+1:],
	}

	var err error
	sig.ArgNames, sig.ArgTypes, err = parseAtomList(argStr)
	if err != nil {
		return nil, err
	}
	sig.RetNames, sig.RetTypes, err = parseAtomList(strings.TrimSpace(retSpec))
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func parseAtomList(s string) (names, types []string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	for _, pair := range strings.Split(s, "&") {
		name, typ, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, nil, merror.NewParseError("expected name:type, got %q", pair)
		}
		names = append(names, strings.TrimSpace(name))
		types = append(types, strings.TrimSpace(typ))
	}
	return names, types, nil
}
