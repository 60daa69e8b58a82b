package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
)

func newSetCommand(configPath *string) *cobra.Command {
	var version int
	var ttl time.Duration
	var tags []string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a key, tagged with zero or more dependency tags",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var dependency deps.Dependency = deps.NewDummy()
			if len(tags) > 0 {
				dependency = deps.NewTags(tags...)
			}

			if err := a.wrapper.Set(ctx, args[0], []byte(args[1]), dependency, ttl, version); err != nil {
				return fmt.Errorf("set %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 1, "cache version namespace")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "entry time-to-live (0 disables expiry)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "dependency tag to attach (repeatable)")
	return cmd
}
