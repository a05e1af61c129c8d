package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/invoicer/internal/config"
	"github.com/cleared-dev/invoicer/internal/ledger"
)

func newInitCommand() *cobra.Command {
	var apiURL string
	var taxRate string
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default invoicer.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			path, err := runInit(absDir, apiURL, taxRate, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "invoicing backend base URL")
	cmd.Flags().StringVar(&taxRate, "tax-rate", "", "default tax rate, e.g. 0.01")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")

	return cmd
}

func runInit(dir, apiURL, taxRate string, force bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if taxRate != "" {
		if _, err := ledger.ParseDecimal(taxRate); err != nil {
			return "", fmt.Errorf("tax rate: %w", err)
		}
		cfg.Invoice.TaxRate = taxRate
	}

	if err := config.Save(path, cfg); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return path, nil
}
