package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCommand(configPath *string) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a key and print its value if it validates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			value, ok, err := a.wrapper.Get(ctx, args[0], version)
			if err != nil {
				return fmt.Errorf("get %q: %w", args[0], err)
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "miss: %q\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(value))
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 1, "cache version namespace")
	return cmd
}
