package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/invoicer/internal/buildinfo"
	"github.com/cleared-dev/invoicer/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "invoicer",
		Short:   "Create, edit and track invoices",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.FileName, "config file")

	rootCmd.AddCommand(
		newInitCommand(),
		newLoginCommand(&configPath),
		newLogoutCommand(&configPath),
		newWhoamiCommand(&configPath),
		newInvoiceCommand(&configPath),
	)

	return rootCmd
}
