package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/cache"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/catalogsync"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/database"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
)

func syncProductsCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "sync-products",
		Short: "Mirror active Stripe products and prices into the database",
		Long: `Pulls every active product and price from Stripe and upserts them.

Without --schedule the command runs once and exits. With --schedule it keeps
running and syncs on the given cron spec until interrupted.

Examples:
  saasfoxctl sync-products
  saasfoxctl sync-products --schedule "@every 1h"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway := billing.NewStripeGatewayFromEnv()
			if gateway == nil {
				return errors.New("STRIPE_SECRET_KEY is not set")
			}
			database.SetupDatabase()
			cache.SetupCache()

			client := cache.GetClient()
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if err := cache.Ping(ctx); err != nil {
				cmd.PrintErrf("redis unavailable, syncing without lock: %v\n", err)
				client = nil
			}

			job := catalogsync.New(billing.NewServiceFromDB(database.GetDB(), gateway), client).
				WithTimeout(env.GetDuration("CATALOG_SYNC_TIMEOUT", 5*time.Minute))

			if schedule == "" {
				res, err := job.Run(cmd.Context())
				if err != nil {
					return fmt.Errorf("sync products: %w", err)
				}
				cmd.Printf("Synced %d products, %d prices\n", res.Products, res.Prices)
				return nil
			}

			c, err := job.Schedule(schedule)
			if err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
			cmd.Printf("Syncing on %q, press Ctrl+C to stop\n", schedule)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec to keep syncing on, e.g. \"0 * * * *\"")

	return cmd
}
