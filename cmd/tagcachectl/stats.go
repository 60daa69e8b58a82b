package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/tagcache/internal/backend/memstore"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
)

func newStatsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the configured backend and a liveness probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:    %s\n", a.cfg.Cache.Backend)
			fmt.Fprintf(out, "isolation:  %s\n", a.cfg.Cache.Isolation)
			fmt.Fprintf(out, "key prefix: %q\n", a.cfg.Cache.KeyPrefix)
			fmt.Fprintf(out, "default ttl: %s\n", a.cfg.Cache.DefaultTTL)

			if hc, ok := a.cache.(cacheport.HealthChecker); ok {
				if err := hc.HealthCheck(ctx); err != nil {
					fmt.Fprintf(out, "health:     unhealthy (%v)\n", err)
				} else {
					fmt.Fprintln(out, "health:     ok")
				}
			}
			if mem, ok := a.cache.(*memstore.Store); ok {
				fmt.Fprintf(out, "entries:    %d\n", mem.Len())
			}
			return nil
		},
	}
}
