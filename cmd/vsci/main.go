package main

import (
	"context"
	"os"
	"syscall"

	"github.com/binary-install/vsci/cmd"
	"github.com/charmbracelet/fang"
)

var (
	// Version and Commit are set during build
	version = "dev"
	commit  = "none"
)

func main() {
	// Cancelling the context on a signal aborts the download; the archive is still removed
	if err := fang.Execute(
		context.Background(),
		cmd.RootCmd,
		fang.WithVersion(version),
		fang.WithCommit(commit),
		fang.WithNotifySignal(syscall.SIGINT, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
