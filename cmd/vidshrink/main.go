package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// exitInterrupted follows the shell convention for a run ended by SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(exitCode(newRootCommand().Execute(), os.Stderr))
}

// exitCode maps a command error to a process status. An interrupted run has
// already reported its partial summary, so only the status is returned.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		fmt.Fprintln(stderr, err)
		return 1
	}
}
