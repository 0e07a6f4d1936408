// Copyright (c) 2017-2021, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package server exposes the core's programmatic operations over a
// unix-domain socket: one JSON request per call, dispatched onto a
// per-connection Disp by reflection.
package server

import (
	"log"
	"net"

	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/session"
)

type Srv struct {
	l      *net.UnixListener
	smgr   *session.SessionMgr
	cmgr   *session.CommitMgr
	st     *schema.Tree
	uname  string
	Config *rtrmgr.Config
	Dlog   *log.Logger
	Elog   *log.Logger
}

func NewSrv(l *net.UnixListener, st *schema.Tree, cmgr *session.CommitMgr,
	username string, config *rtrmgr.Config, elog *log.Logger) *Srv {
	return &Srv{
		l:      l,
		smgr:   session.NewSessionMgrCustomLog(elog),
		cmgr:   cmgr,
		st:     st,
		uname:  username,
		Config: config,
		Dlog:   elog,
		Elog:   elog,
	}
}

// Serve accepts connections until the listener closes. Each connection
// gets its own goroutine and its own dispatcher; session state is
// shared through the session manager.
func (s *Srv) Serve() error {
	for {
		conn, err := s.l.AcceptUnix()
		if err != nil {
			return err
		}
		sconn, err := s.NewConn(conn)
		if err != nil {
			s.Elog.Println(err)
			conn.Close()
			continue
		}
		go sconn.Handle()
	}
}
