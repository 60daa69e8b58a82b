// Command tagcachectl is an operator CLI for driving a tagcache-backed
// cacheport.Cache directly: get/set/invalidate/stats/migrate. Grounded
// on the teacher's internal/infrastructure/migrations/cli.go (cobra
// root command + subcommand-per-file layout).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tagcachectl",
		Short: "Operate a tagcache-backed cache from the command line",
		Long:  "tagcachectl drives a cacheport.Cache directly for inspection and manual invalidation: get, set, invalidate a tag, show stats, and run backend migrations.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a tagcache config YAML file")

	root.AddCommand(
		newGetCommand(&configPath),
		newSetCommand(&configPath),
		newInvalidateCommand(&configPath),
		newStatsCommand(&configPath),
		newMigrateCommand(&configPath),
	)

	return root
}
