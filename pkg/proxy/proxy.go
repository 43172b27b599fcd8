/*
Copyright 2026 The Refresh Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package proxy forwards raw TCP connections to whichever slot child
// is currently active.
//
// The backend address is sampled once per accepted connection, so an
// established connection stays pinned to its child across slot flips;
// only new accepts follow the switch.
package proxy

import (
	"context"
	"io"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Backend reports where new connections should go. Implemented by the
// supervisor's active-slot pointer.
type Backend interface {
	ActiveAddr() string
}

// Proxy accepts on a public address and shuttles bytes to the backend.
type Proxy struct {
	Addr    string
	Backend Backend
}

// ListenAndServe accepts until ctx is done or the listener fails.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.Addr)
	if err != nil {
		return err
	}
	logrus.Infof("proxy listening on %s", ln.Addr())
	return p.Serve(ctx, ln)
}

// Serve accepts on an already-bound listener until ctx is done.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		downstream, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go p.handle(downstream)
	}
}

// handle forwards one connection. Errors stay local to the
// connection.
func (p *Proxy) handle(downstream net.Conn) {
	defer downstream.Close()

	addr := p.Backend.ActiveAddr()
	upstream, err := net.Dial("tcp", addr)
	if err != nil {
		logrus.WithError(err).Warnf("dialing active child %s", addr)
		return
	}
	defer upstream.Close()
	logrus.Debugf("proxying %s -> %s", downstream.RemoteAddr(), addr)

	var g errgroup.Group
	g.Go(func() error { return shuttle(upstream, downstream) })
	g.Go(func() error { return shuttle(downstream, upstream) })
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Debugf("connection from %s closed", downstream.RemoteAddr())
	}
}

// shuttle copies one direction and propagates the half-close.
func shuttle(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	if tc, ok := dst.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	return err
}
