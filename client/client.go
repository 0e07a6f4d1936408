// Copyright (c) 2018-2019, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: MPL-2.0

// Package client is the programmatic client for the router manager's
// unix-domain socket: one typed method per dispatcher operation.
package client

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/danos/rtrmgr/rpc"
	"github.com/danos/utils/pathutil"
)

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
	id   int
	sid  string
}

// Dial connects to the daemon's socket and binds every subsequent call
// to the given session id.
func Dial(sockname, sid string) (*Client, error) {
	conn, err := net.Dial("unix", sockname)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
		sid:  sid,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type callError struct {
	text string
}

func (e *callError) Error() string { return e.text }

func (c *Client) call(method string, args ...interface{}) (interface{}, error) {
	c.id++
	req := &rpc.Request{Method: method, Args: args, Id: c.id}
	if err := c.enc.Encode(req); err != nil {
		return nil, err
	}
	var resp rpc.Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &callError{text: fmt.Sprint(resp.Error)}
	}
	return resp.Result, nil
}

func (c *Client) callBool(method string, args ...interface{}) (bool, error) {
	r, err := c.call(method, args...)
	if err != nil {
		return false, err
	}
	b, _ := r.(bool)
	return b, nil
}

func (c *Client) callString(method string, args ...interface{}) (string, error) {
	r, err := c.call(method, args...)
	if err != nil {
		return "", err
	}
	s, _ := r.(string)
	return s, nil
}

func (c *Client) SessionSetup() (bool, error) {
	return c.callBool("SessionSetup", c.sid)
}

func (c *Client) SessionTeardown() (bool, error) {
	return c.callBool("SessionTeardown", c.sid)
}

func (c *Client) SessionExists() (bool, error) {
	return c.callBool("SessionExists", c.sid)
}

func (c *Client) ParseConfig(text, hint string) (bool, error) {
	return c.callBool("ParseConfig", c.sid, text, hint)
}

func (c *Client) AddDefaultChildren() (bool, error) {
	return c.callBool("AddDefaultChildren", c.sid)
}

func (c *Client) Set(path []string, value, op string) (bool, error) {
	return c.callBool("Set", c.sid, pathutil.Pathstr(path), value, op)
}

func (c *Client) Delete(path []string) (bool, error) {
	return c.callBool("Delete", c.sid, pathutil.Pathstr(path))
}

func (c *Client) Get(path []string) (string, error) {
	return c.callString("Get", c.sid, pathutil.Pathstr(path))
}

func (c *Client) Exists(path []string) (bool, error) {
	return c.callBool("Exists", c.sid, pathutil.Pathstr(path))
}

func (c *Client) Show() (string, error) {
	return c.callString("Show", c.sid)
}

func (c *Client) Commit() (bool, error) {
	return c.callBool("Commit", c.sid)
}

func (c *Client) Discard() (bool, error) {
	return c.callBool("Discard", c.sid)
}

func (c *Client) Save(file string) (bool, error) {
	return c.callBool("Save", c.sid, file)
}

func (c *Client) Load(file string) (bool, error) {
	return c.callBool("Load", c.sid, file)
}

func (c *Client) LockNode(path []string) (bool, error) {
	return c.callBool("LockNode", c.sid, pathutil.Pathstr(path))
}

func (c *Client) UnlockNode(path []string) (bool, error) {
	return c.callBool("UnlockNode", c.sid, pathutil.Pathstr(path))
}

// Diff returns the delta and deletion renderings of the session's
// uncommitted changes.
func (c *Client) Diff() (delta, deletion string, err error) {
	r, err := c.call("Diff", c.sid)
	if err != nil {
		return "", "", err
	}
	parts, _ := r.([]interface{})
	if len(parts) == 2 {
		delta, _ = parts[0].(string)
		deletion, _ = parts[1].(string)
	}
	return delta, deletion, nil
}

func (c *Client) GetNodeStatus(path []string) (string, error) {
	return c.callString("GetNodeStatus", c.sid, pathutil.Pathstr(path))
}

func (c *Client) LoadKeys(user, source string) (string, error) {
	return c.callString("LoadKeys", c.sid, user, source)
}

func (c *Client) SetConfigDebug(logName, level string) (string, error) {
	return c.callString("SetConfigDebug", logName, level)
}
