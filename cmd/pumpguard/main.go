package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:           "pumpguard",
		Short:         "Equipment health and remaining useful life inference",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML or JSON config (env PUMPGUARD_CONFIG)")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
