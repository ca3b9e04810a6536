package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scenariolabs/verdict/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("verdict %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
