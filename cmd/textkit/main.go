// Command textkit runs the Sentinel text analytics toolkit from the shell.
//
// Every text command reads a file argument, or stdin when the argument is
// omitted or "-", and prints a table or, with --json, indented JSON.
//
// Usage:
//
//	textkit analyze report.txt
//	cat notes.md | textkit keywords --count 5 --json
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
