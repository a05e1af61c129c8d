package commands

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cleared-dev/invoicer/internal/id"
	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
)

// render prints inv as a plain-text invoice. Amounts are grouped for the
// configured locale.
func (a *app) render(w io.Writer, inv model.Invoice) error {
	tag, err := language.Parse(a.cfg.Invoice.Locale)
	if err != nil {
		a.log.Debug().Err(err).Str("locale", a.cfg.Invoice.Locale).Msg("falling back to en-US")
		tag = language.AmericanEnglish
	}
	return renderInvoice(w, newMoneyFormat(message.NewPrinter(tag)), inv)
}

func renderInvoice(w io.Writer, p moneyFormat, inv model.Invoice) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Invoice %s  %s\n", id.FormatInvoiceNumber(inv.ID), inv.Status)
	fmt.Fprintf(&b, "From: %s\n", partyLine(inv.From))
	fmt.Fprintf(&b, "To:   %s\n", partyLine(inv.To))
	if inv.Comments != "" {
		fmt.Fprintf(&b, "Note: %s\n", inv.Comments)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%4s  %-30s %12s %6s %14s\n", "#", "Description", "Unit price", "Qty", "Amount")
	for _, it := range inv.Items {
		fmt.Fprintf(&b, "%4d  %-30s %12s %6s %14s\n", it.ID, truncate(it.Description, 30), money(p, it.UnitPrice), it.Quantity, money(p, it.Amount))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-20s %14s\n", "Subtotal", money(p, inv.Subtotal))
	fmt.Fprintf(&b, "%-20s %14s\n", "Tax ("+inv.TaxRate+")", money(p, inv.Tax))
	fmt.Fprintf(&b, "%-20s %14s\n", "Total due", money(p, inv.TotalDue))

	_, err := io.WriteString(w, b.String())
	return err
}

// moneyFormat holds a locale's digit grouping and decimal separators.
type moneyFormat struct {
	group string
	point string
}

// newMoneyFormat reads the separators off a sample number printed by p.
// Locales whose sample does not use ASCII digits fall back to "," and ".".
func newMoneyFormat(p *message.Printer) moneyFormat {
	f := moneyFormat{group: ",", point: "."}
	sample := p.Sprintf("%.1f", 1234.5) // "1<group>234<point>5"
	i := strings.Index(sample, "234")
	j := strings.LastIndex(sample, "5")
	if strings.HasPrefix(sample, "1") && i >= 1 && j > i+3 {
		f.group = sample[1:i]
		f.point = sample[i+3 : j]
	}
	return f
}

// money formats a two-decimal amount exactly, grouped in thousands. Text
// that does not parse is printed as is.
func money(f moneyFormat, s string) string {
	d, err := ledger.ParseDecimal(s)
	if err != nil {
		return s
	}
	fixed := ledger.FormatMoney(ledger.Round2(d))
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.group)
		}
		b.WriteRune(r)
	}
	b.WriteString(f.point)
	b.WriteString(frac)
	return b.String()
}

func partyLine(pt model.Party) string {
	var parts []string
	if pt.Name != "" {
		name := pt.Name
		if pt.Email != "" {
			name += " <" + pt.Email + ">"
		}
		parts = append(parts, name)
	}
	for _, s := range []string{pt.Company, pt.Street, strings.TrimSpace(pt.City + ", " + pt.State + " " + pt.Zip), pt.Phone} {
		if s != "" && s != "," {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
