// Copyright (c) 2018-2019, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package session holds the per-user candidate configuration and
// funnels every operation on it through a single goroutine, so the
// tree is only ever mutated from one place.
package session

import (
	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/rpc"
	"github.com/danos/rtrmgr/schema"
)

type Session struct {
	s session
}

type SessionOption func(*session)

// WithExprEval supplies the host's back-tick expression evaluator.
func WithExprEval(eval func(string) (string, error)) SessionOption {
	return func(s *session) {
		s.candidate.ExprEval = eval
	}
}

func NewSession(sid string, cmgr *CommitMgr, st *schema.Tree,
	options ...SessionOption) *Session {
	candidate := cmgr.RunningTree()
	if candidate == nil {
		candidate = config.New(st)
	}
	s := &Session{
		s: session{
			sid:       sid,
			candidate: candidate,
			cmgr:      cmgr,
			schema:    st,
			locks:     make(map[string]string),
			reqch:     make(chan request),
			kill:      make(chan struct{}),
			term:      make(chan struct{}),
		},
	}

	for _, option := range options {
		option(&s.s)
	}

	go s.s.run()
	return s
}

// submit queues a request on the session goroutine and reports whether
// the session is still alive to take it.
func (s *Session) submit(req request) bool {
	select {
	case s.s.reqch <- req:
		return true
	case <-s.s.term:
		return false
	}
}

func (s *Session) Parse(ctx *rtrmgr.Context, text, sourceHint string) error {
	respch := make(chan error)
	if !s.submit(&parsereq{text: text, hint: sourceHint, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) AddDefaultChildren(ctx *rtrmgr.Context) error {
	respch := make(chan error)
	if !s.submit(&defaultsreq{resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Set(ctx *rtrmgr.Context, path []string, value string,
	op schema.Operator) error {
	respch := make(chan error)
	if !s.submit(&setreq{ctx: ctx, path: path, value: value, op: op, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Delete(ctx *rtrmgr.Context, path []string) error {
	respch := make(chan error)
	if !s.submit(&delreq{ctx: ctx, path: path, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Get(ctx *rtrmgr.Context, path []string) (string, bool) {
	respch := make(chan getresp)
	if !s.submit(&getreq{path: path, resp: respch}) {
		return "", false
	}
	r := <-respch
	return r.value, r.ok
}

func (s *Session) Exists(ctx *rtrmgr.Context, path []string) bool {
	respch := make(chan getresp)
	if !s.submit(&getreq{path: path, existsOnly: true, resp: respch}) {
		return false
	}
	return (<-respch).ok
}

func (s *Session) Show(ctx *rtrmgr.Context) (string, error) {
	respch := make(chan showresp)
	if !s.submit(&showreq{resp: respch}) {
		return "", sessTermError()
	}
	r := <-respch
	return r.text, r.err
}

func (s *Session) Save(ctx *rtrmgr.Context, path string) error {
	respch := make(chan error)
	if !s.submit(&savereq{path: path, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Load(ctx *rtrmgr.Context, path string) error {
	respch := make(chan error)
	if !s.submit(&loadreq{ctx: ctx, path: path, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Commit(ctx *rtrmgr.Context) error {
	respch := make(chan error)
	if !s.submit(&commitreq{ctx: ctx, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) Discard(ctx *rtrmgr.Context) error {
	respch := make(chan error)
	if !s.submit(&discardreq{resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) LockNode(ctx *rtrmgr.Context, path []string) error {
	respch := make(chan error)
	if !s.submit(&lockreq{ctx: ctx, path: path, lock: true, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

func (s *Session) UnlockNode(ctx *rtrmgr.Context, path []string) error {
	respch := make(chan error)
	if !s.submit(&lockreq{ctx: ctx, path: path, lock: false, resp: respch}) {
		return sessTermError()
	}
	return <-respch
}

// NodeStatus reports how the node at path differs between the
// candidate and the committed tree.
func (s *Session) NodeStatus(ctx *rtrmgr.Context, path []string) rpc.NodeStatus {
	respch := make(chan rpc.NodeStatus)
	if !s.submit(&statusreq{path: path, resp: respch}) {
		return rpc.UNCHANGED
	}
	return <-respch
}

// Diff renders the candidate's changes against the committed tree as
// two serialized trees: what changed, and what is gone.
func (s *Session) Diff(ctx *rtrmgr.Context) (delta, deletion string, err error) {
	respch := make(chan diffresp)
	if !s.submit(&diffreq{resp: respch}) {
		return "", "", sessTermError()
	}
	r := <-respch
	return r.delta, r.deletion, nil
}

// Kill terminates the session goroutine. Pending requests fail with a
// session-terminated error.
func (s *Session) Kill() {
	select {
	case <-s.s.term:
	default:
		close(s.s.kill)
		<-s.s.term
	}
}

// session is the actor side: every field below is touched only from
// run().
type session struct {
	sid       string
	candidate *config.Tree
	cmgr      *CommitMgr
	schema    *schema.Tree

	// locks maps a joined node path to the modifier holding it.
	locks map[string]string

	reqch chan request
	kill  chan struct{}
	term  chan struct{}
}

func (s *session) run() {
	defer close(s.term)
	for {
		select {
		case req := <-s.reqch:
			req.execute(s)
		case <-s.kill:
			return
		}
	}
}

func modifierOf(ctx *rtrmgr.Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.User
}
