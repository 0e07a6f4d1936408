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
	"strings"
	"sync"
	"time"

	"github.com/danos/rtrmgr/commit"
	"github.com/danos/rtrmgr/common"
	"github.com/danos/rtrmgr/config"
	"github.com/danos/rtrmgr/merror"
)

const (
	commitLogMsgPrefix = "COMMIT"
	padToLength        = 50
	// 50 + 3 extra just in case
	padding = "                                                     "
)

func pad(msg string) string {
	msgLen := len(msg)
	padLen := 0
	if msgLen < padToLength {
		padLen = padToLength - msgLen
	}
	return msg + ": " + padding[:padLen]
}

// CommitMgr serializes commits: only one may be in flight at a time,
// whatever session asked for it. While a commit runs it also remembers
// which nodes the plan touches, so a concurrent edit can be refused
// with NodeLocked rather than silently racing the plan.
type CommitMgr struct {
	mu      sync.Mutex
	engine  *commit.Engine
	running bool
	owner   string
	locked  map[string]bool

	// runningCfg is the authoritative committed configuration; new
	// sessions start from a copy of it and a successful commit replaces
	// it.
	runningCfg *config.Tree

	Elog *log.Logger
}

func NewCommitMgr(engine *commit.Engine, runningCfg *config.Tree,
	elog *log.Logger) *CommitMgr {
	if elog == nil {
		elog = log.New(ioutil.Discard, "", 0)
	}
	return &CommitMgr{engine: engine, runningCfg: runningCfg, Elog: elog}
}

// RunningTree returns a private copy of the committed configuration for
// a new session to edit.
func (m *CommitMgr) RunningTree() *config.Tree {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runningCfg == nil {
		return nil
	}
	return m.runningCfg.Clone()
}

func (m *CommitMgr) loggingEnabled() bool {
	return common.LoggingIsEnabledAtLevel(common.LevelError, common.TypeCommit)
}

func (m *CommitMgr) LogCommitMsg(msg string) {
	if m.loggingEnabled() {
		m.Elog.Printf("%s: %s", commitLogMsgPrefix, msg)
	}
}

func (m *CommitMgr) LogCommitTime(msg string, startTime time.Time) {
	if m.loggingEnabled() {
		m.Elog.Printf("%s: %s%s", commitLogMsgPrefix, pad(msg),
			time.Since(startTime).Round(time.Millisecond))
	}
}

// Commit drives the two-pass commit of candidate on behalf of
// modifier. A second commit while one is running fails with
// CommitInProgress.
func (m *CommitMgr) Commit(candidate *config.Tree, modifier string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return merror.NewCommitInProgress()
	}
	m.running = true
	m.owner = modifier
	delta, deletion := candidate.Diff(candidate.Committed())
	m.locked = plannedPaths(delta, deletion)
	m.mu.Unlock()

	start := time.Now()
	m.LogCommitMsg("commit started by " + modifier)
	err := m.engine.Commit(candidate)
	if err != nil {
		m.LogCommitMsg("commit failed: " + err.Error())
	} else {
		m.LogCommitTime("commit succeeded", start)
	}

	m.mu.Lock()
	m.running = false
	m.owner = ""
	m.locked = nil
	if err == nil {
		m.runningCfg = candidate.Clone()
	}
	m.mu.Unlock()
	return err
}

// CheckEdit decides whether a provisional edit at path may proceed. No
// commit in flight: always. Commit in flight: only for the same
// modifier, and only on nodes outside the plan.
func (m *CommitMgr) CheckEdit(path []string, modifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	if modifier != m.owner {
		return merror.NewCommitInProgress()
	}
	joined := strings.Join(path, "/")
	for locked := range m.locked {
		if joined == locked ||
			strings.HasPrefix(joined, locked+"/") ||
			strings.HasPrefix(locked, joined+"/") {
			return merror.NewNodeLocked(path)
		}
	}
	return nil
}

// plannedPaths flattens a diff into the set of node paths the plan will
// touch.
func plannedPaths(trees ...*config.Tree) map[string]bool {
	out := make(map[string]bool)
	var walk func(n *config.Node)
	walk = func(n *config.Node) {
		for _, c := range n.Children {
			out[strings.Join(c.Path(), "/")] = true
			walk(c)
		}
	}
	for _, t := range trees {
		walk(t.Root())
	}
	return out
}
