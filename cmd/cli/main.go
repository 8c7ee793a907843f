package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vk/gridci/internal/cli"
)

// main is the entrypoint for the gridci application.
func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command tree against args. The app panics on critical
// startup errors (unreadable workflows, unreachable database); those are
// recovered here into an ordinary error so every exit path is clean.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	rootCmd := cli.NewRootCmd(outW)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
