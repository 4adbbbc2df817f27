package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "saasfoxctl",
		Short: "Operational commands for the SaaSFox API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncProductsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
