package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/invoicer/internal/editor"
	"github.com/cleared-dev/invoicer/internal/export"
	"github.com/cleared-dev/invoicer/internal/id"
	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
	"github.com/cleared-dev/invoicer/internal/remote"
	"github.com/cleared-dev/invoicer/internal/validate"
)

func newInvoiceCommand(configPath *string) *cobra.Command {
	invoiceCmd := &cobra.Command{
		Use:   "invoice",
		Short: "Invoice operations",
	}
	invoiceCmd.AddCommand(
		newInvoiceNewCommand(configPath),
		newInvoiceEditCommand(configPath),
		newInvoiceShowCommand(configPath),
		newInvoiceStatusCommand(configPath),
		newInvoiceDeleteCommand(configPath),
		newInvoiceExportCommand(configPath),
	)
	return invoiceCmd
}

func newInvoiceNewCommand(configPath *string) *cobra.Command {
	var formPath string
	var itemsPath string
	var publish bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an invoice from a form file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readForm(formPath)
			if err != nil {
				return err
			}
			items, err := readItems(itemsPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.newEditor()
			if err != nil {
				return err
			}
			if err := applyItems(e, items); err != nil {
				return err
			}

			err = e.Submit(cmd.Context(), form, publish)
			a.finish(cmd, e)
			if err := submitError(cmd.OutOrStdout(), err); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), e.Draft().Invoice)
		},
	}

	cmd.Flags().StringVarP(&formPath, "file", "f", "", "invoice form YAML (required)")
	cmd.Flags().StringVar(&itemsPath, "items", "", "line items CSV")
	cmd.Flags().BoolVar(&publish, "publish", false, "submit as PENDING instead of DRAFT")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newInvoiceEditCommand(configPath *string) *cobra.Command {
	var formPath string
	var itemsPath string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a saved invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			items, err := readItems(itemsPath)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.openEditor(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}

			form := e.Draft().Invoice
			next := model.Form{From: form.From, To: form.To, Comments: form.Comments}
			if formPath != "" {
				if next, err = readForm(formPath); err != nil {
					return err
				}
			}
			if err := applyItems(e, items); err != nil {
				return err
			}

			err = e.Submit(cmd.Context(), next, false)
			if errors.Is(err, editor.ErrNotModified) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to update")
				return nil
			}
			a.finish(cmd, e)
			if err := submitError(cmd.OutOrStdout(), err); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), e.Draft().Invoice)
		},
	}

	cmd.Flags().StringVarP(&formPath, "file", "f", "", "invoice form YAML")
	cmd.Flags().StringVar(&itemsPath, "items", "", "line items CSV replacing the current items")

	return cmd
}

func newInvoiceShowCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			inv, err := a.client.GetInvoice(cmd.Context(), invoiceID)
			if err != nil {
				return fmt.Errorf("loading invoice: %s", remote.Message(err))
			}
			return a.render(cmd.OutOrStdout(), inv)
		},
	}
}

func newInvoiceStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <PENDING|APPROVED|PAID>",
		Short: "Change the status of a saved invoice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			status := model.Status(strings.ToUpper(args[1]))
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.openEditor(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}
			err = e.ChangeStatus(cmd.Context(), status)
			a.finish(cmd, e)
			return err
		},
	}
}

func newInvoiceDeleteCommand(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete invoice %s? [y/N] ", id.FormatInvoiceNumber(invoiceID))) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.openEditor(cmd.Context(), invoiceID)
			if err != nil {
				return err
			}
			err = e.Delete(cmd.Context())
			a.finish(cmd, e)
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func newInvoiceExportCommand(configPath *string) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write the line items of a saved invoice as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := id.ParseInvoiceID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			inv, err := a.client.GetInvoice(cmd.Context(), invoiceID)
			if err != nil {
				return fmt.Errorf("loading invoice: %s", remote.Message(err))
			}

			if outPath == "" || outPath == "-" {
				return export.WriteItems(cmd.OutOrStdout(), inv.Items)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outPath, err)
			}
			if err := export.WriteItems(f, inv.Items); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d items to %s\n", len(inv.Items), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	return cmd
}

func readForm(path string) (model.Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Form{}, fmt.Errorf("reading form: %w", err)
	}
	var form model.Form
	if err := yaml.Unmarshal(data, &form); err != nil {
		return model.Form{}, fmt.Errorf("parsing form %s: %w", path, err)
	}
	return form, nil
}

func readItems(path string) ([]model.LineItem, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	defer f.Close()

	items, err := export.ReadItems(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ledger.ErrLastItem)
	}
	return items, nil
}

// applyItems replaces the draft's items with items through the same intents
// a user would issue: add a row, fill it in, then remove the old rows.
func applyItems(e *editor.Editor, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	previous := e.Ledger().Items()
	for _, it := range items {
		itemID, err := e.AddItem()
		if err != nil {
			return err
		}
		for _, f := range []struct {
			field ledger.Field
			value string
		}{
			{ledger.FieldDescription, it.Description},
			{ledger.FieldUnitPrice, it.UnitPrice},
			{ledger.FieldQuantity, it.Quantity},
		} {
			if err := e.UpdateItem(itemID, f.field, f.value); err != nil {
				return err
			}
		}
	}
	for _, it := range previous {
		if err := e.RemoveItem(it.ID); err != nil {
			return err
		}
	}
	return nil
}

// submitError prints validation problems one per line.
func submitError(w io.Writer, err error) error {
	var verrs validate.Errors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fmt.Fprintf(w, "  %s: %s\n", fe.Field, fe.Message)
		}
		return fmt.Errorf("invoice is invalid (%d problems)", len(verrs))
	}
	return err
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
