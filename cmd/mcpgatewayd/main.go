// Package main is the entry point for the mcpgatewayd daemon.
package main

import (
	"os"

	"github.com/mcpgate/gateway/cmd/mcpgatewayd/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
