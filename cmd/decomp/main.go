// Package main implements the decomp CLI.
// It recovers structured control flow from LLVM IR, Go packages, Go source
// and YAML CFG fixtures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/go-decomp/cmd/decomp/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.Version = version
	commands.BuildTime = buildTime

	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`decomp version {{.Version}}
`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
