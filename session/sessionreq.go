// Copyright (c) 2018-2019, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package session

import (
	"strings"

	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/rpc"
	"github.com/danos/rtrmgr/schema"
)

type request interface {
	execute(s *session)
}

type parsereq struct {
	text string
	hint string
	resp chan error
}

func (r *parsereq) execute(s *session) {
	r.resp <- s.candidate.Parse(r.text, r.hint)
}

type defaultsreq struct {
	resp chan error
}

func (r *defaultsreq) execute(s *session) {
	s.candidate.AddDefaultChildren()
	r.resp <- nil
}

type setreq struct {
	ctx   *rtrmgr.Context
	path  []string
	value string
	op    schema.Operator
	resp  chan error
}

func (r *setreq) execute(s *session) {
	modifier := modifierOf(r.ctx)
	if err := s.checkEdit(r.path, modifier); err != nil {
		r.resp <- err
		return
	}
	r.resp <- s.candidate.Set(r.path, r.value, r.op, modifier)
}

type delreq struct {
	ctx  *rtrmgr.Context
	path []string
	resp chan error
}

func (r *delreq) execute(s *session) {
	modifier := modifierOf(r.ctx)
	if err := s.checkEdit(r.path, modifier); err != nil {
		r.resp <- err
		return
	}
	r.resp <- s.candidate.Delete(r.path, modifier)
}

type getresp struct {
	value string
	ok    bool
}

type getreq struct {
	path       []string
	existsOnly bool
	resp       chan getresp
}

func (r *getreq) execute(s *session) {
	if r.existsOnly {
		_, ok := s.candidate.Find(r.path)
		r.resp <- getresp{ok: ok}
		return
	}
	v, ok := s.candidate.Get(r.path)
	r.resp <- getresp{value: v, ok: ok}
}

type showresp struct {
	text string
	err  error
}

type showreq struct {
	resp chan showresp
}

func (r *showreq) execute(s *session) {
	r.resp <- showresp{text: s.candidate.Save()}
}

type savereq struct {
	path string
	resp chan error
}

func (r *savereq) execute(s *session) {
	r.resp <- s.candidate.Committed().SaveFile(r.path)
}

type loadreq struct {
	ctx  *rtrmgr.Context
	path string
	resp chan error
}

func (r *loadreq) execute(s *session) {
	// load replaces the whole candidate: refuse while a commit holds
	// any of it
	if err := s.checkEdit(nil, modifierOf(r.ctx)); err != nil {
		r.resp <- err
		return
	}
	loaded, err := config.LoadFile(r.path, s.schema)
	if err != nil {
		r.resp <- err
		return
	}
	// express the file as provisional edits on the committed state, so
	// a subsequent commit applies exactly the difference
	delta, deletion := loaded.Diff(s.candidate.Committed())
	work := s.candidate.Committed()
	if err := work.ApplyDeletions(deletion); err != nil {
		r.resp <- err
		return
	}
	if err := work.ApplyDeltas(delta); err != nil {
		r.resp <- err
		return
	}
	s.candidate = work
	r.resp <- nil
}

type commitreq struct {
	ctx  *rtrmgr.Context
	resp chan error
}

func (r *commitreq) execute(s *session) {
	r.resp <- s.cmgr.Commit(s.candidate, modifierOf(r.ctx))
}

type discardreq struct {
	resp chan error
}

func (r *discardreq) execute(s *session) {
	s.candidate.DiscardProvisional()
	r.resp <- nil
}

type lockreq struct {
	ctx  *rtrmgr.Context
	path []string
	lock bool
	resp chan error
}

func (r *lockreq) execute(s *session) {
	modifier := modifierOf(r.ctx)
	joined := strings.Join(r.path, "/")
	owner, held := s.locks[joined]
	if r.lock {
		if held && owner != modifier {
			r.resp <- lockDenied(owner)
			return
		}
		s.locks[joined] = modifier
		r.resp <- nil
		return
	}
	if held && owner != modifier && !isSuper(r.ctx) {
		r.resp <- lockDenied(owner)
		return
	}
	delete(s.locks, joined)
	r.resp <- nil
}

type statusreq struct {
	path []string
	resp chan rpc.NodeStatus
}

func (r *statusreq) execute(s *session) {
	cand, inCand := s.candidate.Find(r.path)
	committed := s.candidate.Committed()
	base, inBase := committed.Find(r.path)
	switch {
	case inCand && !inBase:
		r.resp <- rpc.ADDED
	case !inCand && inBase:
		r.resp <- rpc.DELETED
	case inCand && inBase && (cand.Value != base.Value || cand.Operator != base.Operator):
		r.resp <- rpc.CHANGED
	default:
		r.resp <- rpc.UNCHANGED
	}
}

type diffresp struct {
	delta    string
	deletion string
}

type diffreq struct {
	resp chan diffresp
}

func (r *diffreq) execute(s *session) {
	delta, deletion := s.candidate.Diff(s.candidate.Committed())
	r.resp <- diffresp{delta: delta.Save(), deletion: deletion.Save()}
}

// checkEdit applies both lock layers: node locks taken via LockNode,
// then the commit manager's in-flight plan.
func (s *session) checkEdit(path []string, modifier string) error {
	joined := strings.Join(path, "/")
	for locked, owner := range s.locks {
		if owner == modifier {
			continue
		}
		if joined == locked ||
			strings.HasPrefix(joined, locked+"/") ||
			strings.HasPrefix(locked, joined+"/") {
			return lockDenied(owner)
		}
	}
	return s.cmgr.CheckEdit(path, modifier)
}

func isSuper(ctx *rtrmgr.Context) bool {
	return ctx != nil && (ctx.Superuser || ctx.Rtrmgr)
}
