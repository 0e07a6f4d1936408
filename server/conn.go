// Copyright (c) 2018-2020, AT&T Intellectual Property. All rights reserved.
//
// Copyright (c) 2014-2015,2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package server

import (
	"encoding/json"
	"io"
	"net"
	"os/user"
	"reflect"
	"sync"
	"syscall"

	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/rpc"
)

func newResponse(result interface{}, err error, id int) *rpc.Response {
	if err != nil {
		return &rpc.Response{Error: err.Error(), Id: id}
	}
	return &rpc.Response{Result: result, Id: id}
}

type SrvConn struct {
	*net.UnixConn
	srv     *Srv
	cred    *syscall.Ucred
	disp    *Disp
	enc     *json.Encoder
	dec     *json.Decoder
	sending *sync.Mutex
}

// NewConn wraps an accepted connection: the peer's credentials become
// the modifier identity every operation on this connection carries.
func (s *Srv) NewConn(conn *net.UnixConn) (*SrvConn, error) {
	cred, err := peerCred(conn)
	if err != nil {
		return nil, err
	}
	ctx := &rtrmgr.Context{
		Pid:    cred.Pid,
		Uid:    cred.Uid,
		Config: s.Config,
		Dlog:   s.Dlog,
		Elog:   s.Elog,
	}
	if u, err := user.LookupId(uintToString(cred.Uid)); err == nil {
		ctx.User = u.Username
		ctx.Superuser = cred.Uid == 0 || u.Username == s.uname
	}
	return &SrvConn{
		UnixConn: conn,
		srv:      s,
		cred:     cred,
		disp:     &Disp{srv: s, ctx: ctx},
		enc:      json.NewEncoder(conn),
		dec:      json.NewDecoder(conn),
		sending:  new(sync.Mutex),
	}, nil
}

func peerCred(conn *net.UnixConn) (*syscall.Ucred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *syscall.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = syscall.GetsockoptUcred(int(fd),
			syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	return cred, credErr
}

func uintToString(v uint32) string {
	b := [10]byte{}
	i := len(b)
	for {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return string(b[i:])
}

//Send an rpc response with appropriate data or an error
func (conn *SrvConn) sendResponse(resp *rpc.Response) error {
	conn.sending.Lock()
	err := conn.enc.Encode(&resp)
	conn.sending.Unlock()
	return err
}

//Receive an rpc request and do some preprocessing.
func (conn *SrvConn) readRequest() (*rpc.Request, error) {
	var req = new(rpc.Request)
	err := conn.dec.Decode(req)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// call resolves a request's method on the dispatcher by reflection,
// checks arity and argument types, and invokes it. Every dispatcher
// method returns (result, error).
func (conn *SrvConn) call(req *rpc.Request) (interface{}, error) {
	m := reflect.ValueOf(conn.disp).MethodByName(req.Method)
	if !m.IsValid() {
		return nil, &rpc.MethErr{Name: req.Method}
	}
	mt := m.Type()
	if mt.NumIn() != len(req.Args) {
		return nil, &rpc.ArgNErr{Method: req.Method, Len: len(req.Args), Elen: mt.NumIn()}
	}
	in := make([]reflect.Value, len(req.Args))
	for i, arg := range req.Args {
		av := reflect.ValueOf(arg)
		// a JSON number is convertible to string in reflect terms, but
		// the result is garbage; require the kinds to line up
		if !av.IsValid() || av.Kind() != mt.In(i).Kind() ||
			!av.Type().ConvertibleTo(mt.In(i)) {
			return nil, &rpc.ArgErr{Method: req.Method, Farg: arg, Etyp: mt.In(i).String()}
		}
		in[i] = av.Convert(mt.In(i))
	}
	out := m.Call(in)
	result := out[0].Interface()
	if errv := out[1].Interface(); errv != nil {
		return result, errv.(error)
	}
	return result, nil
}

// Handle serves one connection until it closes.
func (conn *SrvConn) Handle() {
	defer conn.Close()
	for {
		req, err := conn.readRequest()
		if err != nil {
			if err != io.EOF {
				conn.srv.Elog.Println(err)
			}
			return
		}
		result, callErr := conn.call(req)
		if err := conn.sendResponse(newResponse(result, callErr, req.Id)); err != nil {
			conn.srv.Elog.Println(err)
			return
		}
	}
}
