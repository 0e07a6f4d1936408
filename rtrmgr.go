// Copyright (c) 2018-2020, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package rtrmgr

import (
	"log"
	"log/syslog"
	"os"
	"path/filepath"
)

type LockId int32

const (
	COMMIT LockId = -1
	SYSTEM LockId = -2
)

func (l LockId) String() string {
	switch l {
	case COMMIT:
		return "commit"
	case SYSTEM:
		return "system"
	}
	return "unknown"
}

type Context struct {
	Rtrmgr    bool
	Pid       int32
	Uid       uint32
	User      string
	Groups    []string
	Superuser bool
	Config    *Config
	Dlog      *log.Logger
	Elog      *log.Logger
	Wlog      *log.Logger
	Noexec    bool
}

// Raising privileges should be done sparingly as it bypasses session
// ownership checks, however it is occasionally necessary.
func (c *Context) RaisePrivileges() {
	c.Rtrmgr = true
}

func (c *Context) DropPrivileges() {
	c.Rtrmgr = false
}

type Config struct {
	User       string
	Runfile    string
	Logfile    string
	Pidfile    string
	Schemadir  string
	Sigdir     string
	Socket     string
	SuperGroup string
}

//version of syslog.NewLogger which uses base program name as logging tag
func NewLogger(p syslog.Priority, logFlag int) (*log.Logger, error) {
	var tag string

	tag = filepath.Base(os.Args[0])
	s, err := syslog.New(p, tag)
	if err != nil {
		return nil, err
	}
	return log.New(s, "", logFlag), nil
}
