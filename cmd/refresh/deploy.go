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
	"fmt"
	"log"

	"refresh.dev/pkg/cmdmain"
	"refresh.dev/pkg/deploy"
	"refresh.dev/pkg/env"
)

type deployCmd struct {
	dryRun bool
}

func init() {
	cmdmain.RegisterCommand("deploy", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(deployCmd)
		flags.BoolVar(&cmd.dryRun, "dry-run", false, "Walk and fingerprint only; no network.")
		return cmd
	})
}

func (c *deployCmd) Describe() string {
	return "Upload the working tree and publish it as the new revision."
}

func (c *deployCmd) Usage() {
	cmdmain.Errorf("Usage: refresh deploy [-dry-run] [dir]\n")
}

func (c *deployCmd) Examples() []string {
	return []string{
		"",
		"-dry-run ./site",
	}
}

func (c *deployCmd) RunCommand(args []string) error {
	dir := "."
	switch len(args) {
	case 0:
	case 1:
		dir = args[0]
	default:
		return cmdmain.UsageError("too many arguments")
	}

	if c.dryRun {
		candidates, err := deploy.Walk(dir)
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			fmt.Fprintln(cmdmain.Stdout, cand.Ref)
		}
		log.Printf("%d files; nothing uploaded (dry run)", len(candidates))
		return nil
	}

	server, err := env.IngestAddress()
	if err != nil {
		return err
	}
	cl := &deploy.Client{
		Server: server,
		Logf:   log.Printf,
	}
	revID, err := cl.Deploy(ctxbg, dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmdmain.Stdout, revID)
	return nil
}
