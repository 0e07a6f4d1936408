// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package commit

import (
	"sort"

	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
)

// requiredModules expands a set of module names with every module they
// transitively depend on.
func requiredModules(st *schema.Tree, names map[string]bool) map[string]bool {
	out := make(map[string]bool)
	var add func(name string)
	add = func(name string) {
		if out[name] {
			return
		}
		out[name] = true
		if mb, ok := st.ModuleByName(name); ok {
			for _, dep := range mb.DependsOn {
				add(dep)
			}
		}
	}
	for name := range names {
		add(name)
	}
	return out
}

// topoOrder sorts the given module set so every module appears after
// all modules it depends on. The result is stable across runs for
// identical inputs: ties break in schema declaration order, and modules
// the schema does not declare come last, by name. A dependency cycle is
// a fatal configuration error.
func topoOrder(st *schema.Tree, required map[string]bool) ([]string, error) {
	// schema declaration order is the deterministic base ordering
	var base []string
	for _, mb := range st.Modules() {
		if required[mb.Name()] {
			base = append(base, mb.Name())
		}
	}
	// a required module the schema no longer declares sorts last, by
	// name; undeclared names cannot carry dependencies, so append is safe
	declared := make(map[string]bool, len(base))
	for _, n := range base {
		declared[n] = true
	}
	var undeclared []string
	for name := range required {
		if !declared[name] {
			undeclared = append(undeclared, name)
		}
	}
	sort.Strings(undeclared)
	base = append(base, undeclared...)

	indeg := make(map[string]int, len(base))
	for _, n := range base {
		indeg[n] = 0
	}
	for _, n := range base {
		if mb, ok := st.ModuleByName(n); ok {
			for _, dep := range mb.DependsOn {
				if _, in := indeg[dep]; in && dep != n {
					indeg[n]++
				}
			}
		}
	}

	var order []string
	placed := make(map[string]bool, len(base))
	for len(order) < len(base) {
		progressed := false
		for _, n := range base {
			if placed[n] || indeg[n] != 0 {
				continue
			}
			placed[n] = true
			order = append(order, n)
			progressed = true
			// releasing n lowers the in-degree of its dependents
			for _, m := range base {
				if placed[m] {
					continue
				}
				if mb, ok := st.ModuleByName(m); ok {
					for _, dep := range mb.DependsOn {
						if dep == n {
							indeg[m]--
						}
					}
				}
			}
		}
		if !progressed {
			var cycle []string
			for _, n := range base {
				if !placed[n] {
					cycle = append(cycle, n)
				}
			}
			return nil, merror.NewDependencyCycle(cycle)
		}
	}
	return order, nil
}

// reverse returns a reversed copy, the shutdown order.
func reverse(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
