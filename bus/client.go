// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: MPL-2.0

package bus

import (
	"context"
	"fmt"

	"github.com/danos/vci"
)

// Client is the default Bus implementation, a thin adaptor over
// github.com/danos/vci: dial per call, issue the request, store the
// reply atoms.
type Client struct {
	dial func() (vciConn, error)
}

// vciConn is the subset of *vci.Client this package depends on; kept as
// an interface so tests can substitute a fake without a live finder.
type vciConn interface {
	Call(target, method string, args interface{}) vciCallResult
	Close() error
}

type vciCallResult interface {
	StoreOutputInto(interface{}) error
}

func NewClient() *Client {
	return &Client{dial: dialVCI}
}

func dialVCI() (vciConn, error) {
	c, err := vci.Dial()
	if err != nil {
		return nil, err
	}
	return vciAdaptor{c}, nil
}

// vciAdaptor satisfies vciConn against the real *vci.Client.
type vciAdaptor struct {
	c *vci.Client
}

func (a vciAdaptor) Call(target, method string, args interface{}) vciCallResult {
	return a.c.Call(target, method, args)
}

func (a vciAdaptor) Close() error { return a.c.Close() }

func (c *Client) Call(ctx context.Context, req Request) (*Reply, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, &CallError{Wire: ErrNoFinder, Text: err.Error()}
	}
	defer conn.Close()

	args := make(map[string]string, len(req.Args))
	for _, a := range req.Args {
		args[a.Name] = a.Value
	}

	var result map[string]string
	done := make(chan error, 1)
	go func() {
		done <- conn.Call(req.Target, req.Namespace+"/"+req.Method, args).StoreOutputInto(&result)
	}()

	select {
	case <-ctx.Done():
		return nil, &CallError{Wire: ErrReplyTimedOut, Text: ctx.Err().Error()}
	case err := <-done:
		if err != nil {
			return nil, classifyDialError(err)
		}
	}

	reply := &Reply{}
	for name, val := range result {
		reply.Atoms = append(reply.Atoms, Atom{Name: name, Value: val})
	}
	return reply, nil
}

func classifyDialError(err error) error {
	if ce, ok := err.(*CallError); ok {
		return ce
	}
	return &CallError{Wire: ErrSendFailedTransient, Text: fmt.Sprintf("%s", err)}
}
