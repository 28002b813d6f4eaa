// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/layoutprobe/cmd"
)

// main is the entry point for the layoutprobe CLI. SIGINT and SIGTERM cancel
// the audit context so open tabs and Chrome shut down cleanly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
