package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/env"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tooling for DocPay payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(webhooksCmd())
	root.AddCommand(paymentsCmd())
	root.AddCommand(reconcileCmd())

	return root
}

func loadConfig() (*config.Config, error) {
	env.SetupEnvFile()
	return config.Load()
}
