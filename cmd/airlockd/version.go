package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marscolony/airlock-go/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of airlockd",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "airlockd version %s\n", Version)
		fmt.Fprintf(out, "actuator protocol %s\n", version.Current)
		fmt.Fprintf(out, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
