package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tailbeacon/pkg/version"
)

func newVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the tailbeacon version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tailbeacon %s\n", version.String())
		},
	}
}
