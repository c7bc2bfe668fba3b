package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/veskora/screenpilot/cmd"
)

// main is the entry point for the screenpilot application. It installs the
// signal handler so Ctrl-C cancels the run cleanly, then hands control to
// the command tree.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
