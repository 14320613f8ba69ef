// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// hrb-admin is the operator tool for a hearty-rabbit deployment: user
// management and direct manipulation of the ownership indexes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &command{
		Name:    "hrb-admin",
		Summary: "hearty-rabbit administration",
		Subcommands: []*command{
			userCommand(),
			linkCommand(),
			unlinkCommand(),
			moveCommand(),
			renameCommand(),
			setPermissionCommand(),
			setCoverCommand(),
			listCommand(),
			collectionsCommand(),
			queryBlobCommand(),
			publicCommand(),
		},
	}
	return root.execute(os.Args[1:])
}
