// Copyright (c) 2017-2021, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package server

import (
	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/common"
	"github.com/danos/rtrmgr/merror"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/session"
	"github.com/danos/utils/pathutil"
)

// Disp is the per-connection dispatcher. Every exported method is
// callable by name over the wire; paths arrive in pathutil's encoded
// string form.
type Disp struct {
	srv *Srv
	ctx *rtrmgr.Context
}

func (d *Disp) sess(sid string) (*session.Session, error) {
	return d.srv.smgr.GetOrCreate(d.ctx, sid, d.srv.cmgr, d.srv.st)
}

func (d *Disp) SessionExists(sid string) (bool, error) {
	sess, err := d.srv.smgr.Get(d.ctx, sid)
	return sess != nil && err == nil, nil
}

func (d *Disp) SessionSetup(sid string) (bool, error) {
	_, err := d.srv.smgr.Create(d.ctx, sid, d.srv.cmgr, d.srv.st)
	return err == nil, err
}

func (d *Disp) SessionTeardown(sid string) (bool, error) {
	err := d.srv.smgr.Destroy(d.ctx, sid)
	return err == nil, err
}

func (d *Disp) ParseConfig(sid string, text string, hint string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.Parse(d.ctx, text, hint)
	return err == nil, err
}

func (d *Disp) AddDefaultChildren(sid string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.AddDefaultChildren(d.ctx)
	return err == nil, err
}

func (d *Disp) Set(sid string, path string, value string, opText string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	op, ok := schema.ParseOperator(opText)
	if !ok {
		return false, merror.NewSchemaViolation(pathutil.Makepath(path),
			"unknown operator %q", opText)
	}
	err = sess.Set(d.ctx, pathutil.Makepath(path), value, op)
	return err == nil, err
}

func (d *Disp) Delete(sid string, path string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.Delete(d.ctx, pathutil.Makepath(path))
	return err == nil, err
}

func (d *Disp) Get(sid string, path string) (string, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return "", err
	}
	v, _ := sess.Get(d.ctx, pathutil.Makepath(path))
	return v, nil
}

func (d *Disp) Exists(sid string, path string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	return sess.Exists(d.ctx, pathutil.Makepath(path)), nil
}

func (d *Disp) Show(sid string) (string, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return "", err
	}
	return sess.Show(d.ctx)
}

func (d *Disp) Commit(sid string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.Commit(d.ctx)
	return err == nil, err
}

func (d *Disp) Discard(sid string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.Discard(d.ctx)
	return err == nil, err
}

func (d *Disp) Save(sid string, file string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	if file == "" {
		file = d.srv.Config.Runfile
	}
	err = sess.Save(d.ctx, file)
	return err == nil, err
}

func (d *Disp) Load(sid string, file string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.Load(d.ctx, file)
	return err == nil, err
}

func (d *Disp) LockNode(sid string, path string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.LockNode(d.ctx, pathutil.Makepath(path))
	return err == nil, err
}

func (d *Disp) UnlockNode(sid string, path string) (bool, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return false, err
	}
	err = sess.UnlockNode(d.ctx, pathutil.Makepath(path))
	return err == nil, err
}

// GetNodeStatus reports whether the node at path is UNCHANGED, CHANGED,
// ADDED or DELETED relative to the committed tree.
func (d *Disp) GetNodeStatus(sid string, path string) (string, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return "", err
	}
	return sess.NodeStatus(d.ctx, pathutil.Makepath(path)).String(), nil
}

// Diff returns the candidate's changes against the committed tree:
// first the delta rendering, then the deletion rendering.
func (d *Disp) Diff(sid string) ([]string, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return nil, err
	}
	delta, deletion, err := sess.Diff(d.ctx)
	if err != nil {
		return nil, err
	}
	return []string{delta, deletion}, nil
}

// LoadKeys imports an authorized-keys file into a user's public-keys
// configuration subtree and commits it.
func (d *Disp) LoadKeys(sid string, user string, source string) (string, error) {
	sess, err := d.sess(sid)
	if err != nil {
		return "", err
	}
	return loadKeys(sess, d.ctx, user, source)
}

func (d *Disp) SetConfigDebug(logName string, level string) (string, error) {
	return common.SetDebug(logName, level)
}
