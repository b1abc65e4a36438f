package main

import (
	"github.com/spf13/cobra"
)

func runInspect(cmd *cobra.Command, args []string) error {
	b, err := readDocument(args[0])
	if err != nil {
		return err
	}
	describe(cmd.OutOrStdout(), b, showLeaves)
	return nil
}
