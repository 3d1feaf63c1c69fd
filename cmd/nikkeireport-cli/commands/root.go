package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nikkeireport-backend/lib/telemetry"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "nikkeireport-cli",
	Short: "nikkeireport-cli scrapes per-security report pages into a local database.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
