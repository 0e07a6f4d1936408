// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package schema implements the schema (template) tree: a type-level
// description of the set of configurable objects a router can expose,
// parsed once from a directory of schema files.
//
// The tree is an arena of immutable nodes addressed by index, so
// configuration nodes can refer to their schema without back-pointers
// and the whole tree is cheap to share.
package schema

import "fmt"

// ValueType is the type a leaf schema node carries.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeBool
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeText
	TypeIPv4
	TypeIPv4Net
	TypeIPv6
	TypeIPv6Net
	TypeMAC
	TypeURL
	TypeChoice
)

func (t ValueType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeText:
		return "text"
	case TypeIPv4:
		return "ipv4"
	case TypeIPv4Net:
		return "ipv4-net"
	case TypeIPv6:
		return "ipv6"
	case TypeIPv6Net:
		return "ipv6-net"
	case TypeMAC:
		return "mac"
	case TypeURL:
		return "url"
	case TypeChoice:
		return "choice"
	}
	return "unknown"
}

func ParseValueType(s string) (ValueType, bool) {
	switch s {
	case "none", "container":
		return TypeNone, true
	case "bool":
		return TypeBool, true
	case "int32":
		return TypeInt32, true
	case "uint32":
		return TypeUint32, true
	case "int64":
		return TypeInt64, true
	case "uint64":
		return TypeUint64, true
	case "text":
		return TypeText, true
	case "ipv4":
		return TypeIPv4, true
	case "ipv4-net":
		return TypeIPv4Net, true
	case "ipv6":
		return TypeIPv6, true
	case "ipv6-net":
		return TypeIPv6Net, true
	case "mac":
		return TypeMAC, true
	case "url":
		return TypeURL, true
	case "choice":
		return TypeChoice, true
	}
	return TypeNone, false
}

// Operator is a configuration operator, as carried by a configuration
// node and admitted per-leaf by %allow-operator.
type Operator int

const (
	OpNone Operator = iota
	OpSet           // =
	OpSetOnce       // :=
	OpNotEqual      // !=
	OpLess          // <
	OpLessEq        // <=
	OpGreater       // >
	OpGreaterEq     // >=
	OpAddEq         // +=
	OpSubEq         // -=
	OpMulEq         // *=
	OpDivEq         // /=
)

var operatorText = map[Operator]string{
	OpNone:      "",
	OpSet:       "=",
	OpSetOnce:   ":=",
	OpNotEqual:  "!=",
	OpLess:      "<",
	OpLessEq:    "<=",
	OpGreater:   ">",
	OpGreaterEq: ">=",
	OpAddEq:     "+=",
	OpSubEq:     "-=",
	OpMulEq:     "*=",
	OpDivEq:     "/=",
}

func (o Operator) String() string {
	if s, ok := operatorText[o]; ok {
		return s
	}
	return "?"
}

func ParseOperator(s string) (Operator, bool) {
	for op, text := range operatorText {
		if text == s && op != OpNone {
			return op, true
		}
	}
	return OpNone, false
}

// AllowedValue is a single (value, help) pair from an %allow clause.
type AllowedValue struct {
	Value string
	Help  string
}

// AllowedRange is a single (low, high, help) inclusive range from an
// %allow-range clause.
type AllowedRange struct {
	Low, High int64
	Help      string
}

func (r AllowedRange) Contains(v int64) bool { return v >= r.Low && v <= r.High }

// ClauseKind is the kind of action clause a schema node can carry.
type ClauseKind int

const (
	ClauseCreate ClauseKind = iota
	ClauseActivate
	ClauseUpdate
	ClauseDelete
	ClauseSet
	ClauseGet
	ClauseList
)

func (c ClauseKind) String() string {
	switch c {
	case ClauseCreate:
		return "create"
	case ClauseActivate:
		return "activate"
	case ClauseUpdate:
		return "update"
	case ClauseDelete:
		return "delete"
	case ClauseSet:
		return "set"
	case ClauseGet:
		return "get"
	case ClauseList:
		return "list"
	}
	return "unknown"
}

func parseClauseKind(s string) (ClauseKind, bool) {
	switch s {
	case "create":
		return ClauseCreate, true
	case "activate":
		return ClauseActivate, true
	case "update":
		return ClauseUpdate, true
	case "delete":
		return ClauseDelete, true
	case "set":
		return ClauseSet, true
	case "get":
		return ClauseGet, true
	case "list":
		return ClauseList, true
	}
	return 0, false
}

// SegmentKind distinguishes the pieces of a parsed template string.
type SegmentKind int

const (
	SegLiteral SegmentKind = iota
	SegVarRef
	SegExpr
)

// Segment is one piece of a parsed template (an XRL request or a program
// argv element).
type Segment struct {
	Kind    SegmentKind
	Literal string // SegLiteral
	VarRef  string // SegVarRef: dotted path, or "@" for the owning node's own key
	Expr    string // SegExpr: raw backtick-quoted text
}

func (s Segment) String() string {
	switch s.Kind {
	case SegLiteral:
		return s.Literal
	case SegVarRef:
		return fmt.Sprintf("$(%s)", s.VarRef)
	case SegExpr:
		return fmt.Sprintf("`%s`", s.Expr)
	}
	return ""
}

// Template is a sequence of segments, substituted at execution time.
type Template []Segment

func (t Template) String() string {
	s := ""
	for _, seg := range t {
		s += seg.String()
	}
	return s
}
