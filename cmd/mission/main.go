// Command mission runs a mission sequence described by a TOML scenario.
package main

import (
	"fmt"
	"os"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mission",
	Short: "mission runs a sequence of commands propagating spacecraft",
	Long: `mission builds a command sequence (loops, conditionals, assignments, burns and
propagations) from a TOML scenario and runs it, locating the configured events on the way.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("scenario", "s", "", "scenario TOML file")
	rootCmd.PersistentFlags().String("config", "", "directory of conf.toml (defaults to $"+missionseq.ConfigEnv+" or the built-in defaults)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
