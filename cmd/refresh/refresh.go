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

// The refresh command deploys working trees to a refresh server
// ("refresh deploy") and runs the server itself ("refresh serve").
package main

import (
	"context"
	"log"

	"refresh.dev/pkg/cmdmain"
)

func init() {
	// So we can simply use log.Printf and log.Fatalf.
	log.SetOutput(cmdmain.Stderr)
}

var ctxbg = context.Background()

func main() {
	cmdmain.Main()
}
