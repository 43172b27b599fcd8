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

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"refresh.dev/pkg/bus"
	"refresh.dev/pkg/cmdmain"
	"refresh.dev/pkg/constants"
	"refresh.dev/pkg/env"
	"refresh.dev/pkg/ingest"
	"refresh.dev/pkg/proxy"
	"refresh.dev/pkg/store/postgres"
	"refresh.dev/pkg/supervisor"
	"refresh.dev/pkg/webserver"
)

type serveCmd struct{}

func init() {
	cmdmain.RegisterCommand("serve", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(serveCmd)
	})
}

func (c *serveCmd) Describe() string {
	return "Run the server, as either the deploy ingest or the fresh supervisor (per SERVE_MODE)."
}

func (c *serveCmd) Usage() {
	cmdmain.Errorf("Usage: SERVE_MODE={DEPLOY_INGEST|SERVE_FRESH} DATABASE_URL=... refresh serve\n")
}

func (c *serveCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("serve takes no arguments")
	}
	if *cmdmain.FlagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	mode, err := env.Mode()
	if err != nil {
		return err
	}
	conninfo, err := env.DatabaseURL()
	if err != nil {
		return err
	}

	// Interactive interrupt is a hard exit: in-flight requests are
	// dropped and children die via their parent-death signal.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logrus.Info("interrupted; shutting down hard")
		os.Exit(0)
	}()

	switch mode {
	case env.ModeIngest:
		return c.serveIngest(conninfo)
	case env.ModeFresh:
		return c.serveFresh(conninfo)
	}
	panic("unreachable")
}

func (c *serveCmd) serveIngest(conninfo string) error {
	sto, err := postgres.New(ctxbg, conninfo)
	if err != nil {
		return err
	}
	defer sto.Close()
	notifier, err := bus.NewPostgresNotifier(ctxbg, conninfo)
	if err != nil {
		return err
	}
	defer notifier.Close()

	ws := webserver.New()
	ws.Handle("/api", ingest.NewHandler(sto, notifier))
	if err := ws.Listen(constants.IngestAddr); err != nil {
		return err
	}
	return ws.Serve()
}

func (c *serveCmd) serveFresh(conninfo string) error {
	sto, err := postgres.New(ctxbg, conninfo)
	if err != nil {
		return err
	}
	defer sto.Close()
	sub, err := bus.NewPostgresSubscriber(conninfo)
	if err != nil {
		return err
	}
	defer sub.Close()

	sup := supervisor.New(supervisor.DefaultConfig(), sto)
	pxy := &proxy.Proxy{
		Addr:    constants.ProxyAddr,
		Backend: sup,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- pxy.ListenAndServe(ctxbg)
	}()
	go func() {
		errc <- sup.Run(ctxbg, sub.Wake())
	}()
	return <-errc
}
