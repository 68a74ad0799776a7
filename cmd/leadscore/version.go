package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rushteam/leadscore"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of leadscore",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "leadscore CLI\n")
			fmt.Fprintf(out, "  Version: %s\n", leadscore.Version)
			fmt.Fprintf(out, "  Runtime: %s\n", runtime.Version())
		},
	}
}
