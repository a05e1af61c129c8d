package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cleared-dev/invoicer/internal/model"
)

// NextItemID returns max existing line-item id + 1 (1 for an empty list).
func NextItemID(items []model.LineItem) int {
	maxID := 0
	for _, it := range items {
		if it.ID > maxID {
			maxID = it.ID
		}
	}
	return maxID + 1
}

// FormatInvoiceNumber returns a display number like "INV-000042".
func FormatInvoiceNumber(id int64) string {
	return fmt.Sprintf("INV-%06d", id)
}

// ParseInvoiceID accepts either a bare id ("42") or a display number
// ("INV-000042").
func ParseInvoiceID(s string) (int64, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.ToUpper(raw), "INV-")
	if raw == "" {
		return 0, fmt.Errorf("invalid invoice ID: %q", s)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid invoice ID %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid invoice ID %q: must be positive", s)
	}
	return n, nil
}
