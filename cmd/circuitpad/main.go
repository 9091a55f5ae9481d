// Command circuitpad edits registry packages from a local directory.
//
// A pulled package is a plain directory of files plus .circuitpad/state.json,
// which remembers the package and the file contents as last loaded or saved.
// status, save and discard compare the directory against that snapshot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
