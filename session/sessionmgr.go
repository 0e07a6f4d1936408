// Copyright (c) 2018-2020, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package session

import (
	"io/ioutil"
	"log"
	"log/syslog"
	"sync"

	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/schema"
)

//Session manager is a monitor that provides access to the shared session state.
//All methods must be protected by Mutex
type SessionMgr struct {
	mu       *sync.RWMutex
	sessions map[string]*Session
	Elog     *log.Logger
}

func NewSessionMgr() *SessionMgr {
	elog, err := syslog.NewLogger(syslog.LOG_ERR|syslog.LOG_DAEMON, 0)
	if err != nil {
		elog = log.New(ioutil.Discard, "", 0)
	}

	return NewSessionMgrCustomLog(elog)
}

func NewSessionMgrCustomLog(elog *log.Logger) *SessionMgr {
	return &SessionMgr{
		mu:       &sync.RWMutex{},
		sessions: make(map[string]*Session),
		Elog:     elog,
	}
}

//Internal unprotected function, reduces lock pressure
func (mgr *SessionMgr) get(sid string) (*Session, error) {
	sess, ok := mgr.sessions[sid]
	if !ok {
		return nil, sessTermError()
	}
	return sess, nil
}

func (mgr *SessionMgr) Get(_ *rtrmgr.Context, sid string) (*Session, error) {
	if mgr == nil {
		return nil, nilSessionMgrError()
	}
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.get(sid)
}

// Create builds a new session over the schema; an existing sid is an
// error.
func (mgr *SessionMgr) Create(_ *rtrmgr.Context, sid string, cmgr *CommitMgr,
	st *schema.Tree, options ...SessionOption) (*Session, error) {
	if mgr == nil {
		return nil, nilSessionMgrError()
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if _, ok := mgr.sessions[sid]; ok {
		return nil, sessExistsError(sid)
	}
	sess := NewSession(sid, cmgr, st, options...)
	mgr.sessions[sid] = sess
	return sess, nil
}

// GetOrCreate returns the session for sid, creating it on first use.
func (mgr *SessionMgr) GetOrCreate(ctx *rtrmgr.Context, sid string,
	cmgr *CommitMgr, st *schema.Tree) (*Session, error) {
	if mgr == nil {
		return nil, nilSessionMgrError()
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if sess, ok := mgr.sessions[sid]; ok {
		return sess, nil
	}
	sess := NewSession(sid, cmgr, st)
	mgr.sessions[sid] = sess
	return sess, nil
}

func (mgr *SessionMgr) Destroy(_ *rtrmgr.Context, sid string) error {
	if mgr == nil {
		return nilSessionMgrError()
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	sess, err := mgr.get(sid)
	if err != nil {
		return err
	}
	sess.Kill()
	delete(mgr.sessions, sid)
	return nil
}

// DestroyAll tears every session down; used on daemon shutdown.
func (mgr *SessionMgr) DestroyAll(_ *rtrmgr.Context) {
	if mgr == nil {
		return
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for sid, sess := range mgr.sessions {
		sess.Kill()
		delete(mgr.sessions, sid)
	}
}
