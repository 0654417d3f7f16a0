package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yildizm/notedex/internal/cli"
)

// Build variables set by ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand(version, commit, date).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
