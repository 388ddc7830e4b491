package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "clients-api",
	Short: "Per-user client management API",
	Long: `clients-api serves the owner-scoped client management REST API.

	clients-api server        start the HTTP API
	clients-api migrate up    apply the PostgreSQL migrations
	clients-api migrate down  roll migrations back
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
