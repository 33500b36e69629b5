package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "identity-sync",
		Short:         "Identity reconciliation operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newMergeCmd(),
		newDetectCmd(),
		newOffsetsCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func execute() int {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCode(err)
}

func as(err error, target any) bool {
	return errors.As(err, target)
}
