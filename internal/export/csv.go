package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
)

// Header is the CSV header for an items file.
const Header = "id,description,unit_price,quantity,amount"

const (
	numFields = 5
	colID     = 0
	colDesc   = 1
	colPrice  = 2
	colQty    = 3
	colAmount = 4
)

// ReadItems reads line items from an items CSV. The header row is
// required. Unit price and quantity are kept as raw text; amounts are
// recomputed by the ledger when the items are applied to a draft.
func ReadItems(r io.Reader) ([]model.LineItem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading items CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if strings.Join(records[0], ",") != Header {
		return nil, fmt.Errorf("unexpected header %q, want %q", strings.Join(records[0], ","), Header)
	}

	var items []model.LineItem
	for i, rec := range records[1:] {
		item, err := UnmarshalItem(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteItems writes line items to an items CSV (including header).
func WriteItems(w io.Writer, items []model.LineItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, item := range items {
		if err := cw.Write(MarshalItem(item)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalItem converts a LineItem to a CSV row.
func MarshalItem(item model.LineItem) []string {
	row := make([]string, numFields)
	row[colID] = strconv.Itoa(item.ID)
	row[colDesc] = item.Description
	row[colPrice] = item.UnitPrice
	row[colQty] = item.Quantity
	row[colAmount] = item.Amount
	return row
}

// UnmarshalItem converts a CSV row to a LineItem. An empty id is allowed
// and left as zero; an empty amount is left empty.
func UnmarshalItem(record []string) (model.LineItem, error) {
	if len(record) != numFields {
		return model.LineItem{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	var itemID int
	if record[colID] != "" {
		var err error
		itemID, err = strconv.Atoi(record[colID])
		if err != nil || itemID < 1 {
			return model.LineItem{}, fmt.Errorf("parsing id %q: must be a positive integer", record[colID])
		}
	}

	amount := record[colAmount]
	if amount != "" {
		d, err := ledger.ParseDecimal(amount)
		if err != nil {
			return model.LineItem{}, fmt.Errorf("parsing amount %q: %w", amount, err)
		}
		amount = ledger.FormatMoney(d)
	}

	return model.LineItem{
		ID:          itemID,
		Description: record[colDesc],
		UnitPrice:   record[colPrice],
		Quantity:    record[colQty],
		Amount:      amount,
	}, nil
}
