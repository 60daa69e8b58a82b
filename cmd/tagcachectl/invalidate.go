package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
)

func newInvalidateCommand(configPath *string) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "invalidate <tag> [tag...]",
		Short: "Invalidate one or more dependency tags immediately",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			dependency := deps.NewTags(args...)
			if err := a.wrapper.InvalidateDependency(ctx, dependency, version); err != nil {
				return fmt.Errorf("invalidate %v: %w", args, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated: %v\n", args)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 1, "cache version namespace")
	return cmd
}
