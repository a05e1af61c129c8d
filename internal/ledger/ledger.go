package ledger

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/invoicer/internal/id"
	"github.com/cleared-dev/invoicer/internal/model"
)

var (
	// ErrLastItem is returned when removing the only remaining item.
	ErrLastItem = errors.New("at least one invoice item is required")
	// ErrItemNotFound is returned for an id that is not in the ledger.
	ErrItemNotFound = errors.New("invoice item not found")
	// ErrUnknownField is returned when UpdateField names a non-editable field.
	ErrUnknownField = errors.New("unknown invoice item field")
	// ErrEmpty is returned when hydrating a ledger from an empty item list.
	ErrEmpty = errors.New("invoice has no items")
)

// Field names an editable line-item column.
type Field string

const (
	FieldDescription Field = "description"
	FieldUnitPrice   Field = "unitPrice"
	FieldQuantity    Field = "quantity"
)

// Totals are the derived monetary values of a ledger.
type Totals struct {
	Subtotal string
	Tax      string
	TotalDue string
}

// Ledger is an ordered list of line items plus derived totals.
// A Ledger is a value: every operation returns a new Ledger and the
// item slice of an existing value is never written to.
type Ledger struct {
	items   []model.LineItem
	taxRate string
	totals  Totals
	log     zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for tolerated parse failures.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New returns a ledger holding a single placeholder item.
func New(taxRate string, opts ...Option) (Ledger, error) {
	return build([]model.LineItem{placeholder(1)}, taxRate, opts)
}

// FromItems hydrates a ledger from persisted items. Amounts are taken as
// stored; totals are recomputed from them.
func FromItems(items []model.LineItem, taxRate string, opts ...Option) (Ledger, error) {
	if len(items) == 0 {
		return Ledger{}, ErrEmpty
	}
	return build(append([]model.LineItem(nil), items...), taxRate, opts)
}

func build(items []model.LineItem, taxRate string, opts []Option) (Ledger, error) {
	if _, err := ParseDecimal(taxRate); err != nil {
		return Ledger{}, fmt.Errorf("tax rate: %w", err)
	}
	l := Ledger{items: items, taxRate: taxRate, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&l)
	}
	l.recompute()
	return l, nil
}

func placeholder(itemID int) model.LineItem {
	return model.LineItem{ID: itemID, UnitPrice: "0.00", Quantity: "1", Amount: "0.00"}
}

// Items returns a copy of the items in presentation order.
func (l Ledger) Items() []model.LineItem {
	return append([]model.LineItem(nil), l.items...)
}

// Item returns the item with the given id.
func (l Ledger) Item(itemID int) (model.LineItem, bool) {
	if i := l.index(itemID); i >= 0 {
		return l.items[i], true
	}
	return model.LineItem{}, false
}

// Len returns the number of items.
func (l Ledger) Len() int { return len(l.items) }

// TaxRate returns the tax rate the totals are computed with.
func (l Ledger) TaxRate() string { return l.taxRate }

// Totals returns the current derived totals.
func (l Ledger) Totals() Totals { return l.totals }

// AddItem appends an empty item with quantity 1. A new item contributes
// nothing, so totals are left as they are.
func (l Ledger) AddItem() Ledger {
	next := make([]model.LineItem, len(l.items), len(l.items)+1)
	copy(next, l.items)
	l.items = append(next, placeholder(id.NextItemID(l.items)))
	return l
}

// RemoveItem removes the item with the given id and recomputes totals.
// The last remaining item can never be removed.
func (l Ledger) RemoveItem(itemID int) (Ledger, error) {
	if len(l.items) <= 1 {
		return l, ErrLastItem
	}
	i := l.index(itemID)
	if i < 0 {
		return l, fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
	}
	next := make([]model.LineItem, 0, len(l.items)-1)
	next = append(next, l.items[:i]...)
	next = append(next, l.items[i+1:]...)
	l.items = next
	l.recompute()
	return l, nil
}

// UpdateField sets one field of an item to the user's raw value. Changing
// the unit price or quantity recomputes that item's amount when both parse;
// otherwise the amount keeps its previous value.
func (l Ledger) UpdateField(itemID int, field Field, value string) (Ledger, error) {
	i := l.index(itemID)
	if i < 0 {
		return l, fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
	}

	next := l.Items()
	item := next[i]
	switch field {
	case FieldDescription:
		item.Description = value
	case FieldUnitPrice:
		item.UnitPrice = value
	case FieldQuantity:
		item.Quantity = value
	default:
		return l, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if field != FieldDescription {
		amount, err := itemAmount(item)
		if err != nil {
			l.log.Debug().Err(err).Int("item_id", itemID).Str("field", string(field)).
				Msg("ledger: amount not recomputed")
		} else {
			item.Amount = amount
		}
	}

	next[i] = item
	l.items = next
	l.recompute()
	return l, nil
}

func (l *Ledger) recompute() {
	totals, err := CalculateAmountDue(CalculateSubtotal(l.items), l.taxRate)
	if err != nil {
		l.log.Warn().Err(err).Msg("ledger: totals not recomputed")
		return
	}
	l.totals = totals
}

func (l Ledger) index(itemID int) int {
	for i, it := range l.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func itemAmount(item model.LineItem) (string, error) {
	price, err := ParseDecimal(item.UnitPrice)
	if err != nil {
		return "", fmt.Errorf("unit price: %w", err)
	}
	qty, err := ParseDecimal(item.Quantity)
	if err != nil {
		return "", fmt.Errorf("quantity: %w", err)
	}
	amount := Round2(price.Mul(qty))
	if !inRange(amount) {
		return "", fmt.Errorf("amount: %w: out of range", ErrNotANumber)
	}
	return FormatMoney(amount), nil
}

// CalculateSubtotal sums item amounts; amounts that do not parse count as
// zero.
func CalculateSubtotal(items []model.LineItem) string {
	sum := decimal.Zero
	for _, it := range items {
		amount, err := ParseDecimal(it.Amount)
		if err != nil {
			continue
		}
		sum = sum.Add(amount)
	}
	return FormatMoney(Round2(sum))
}

// CalculateAmountDue applies taxRate to subtotal. tax = round2(subtotal *
// rate) and total due = round2(subtotal + tax).
func CalculateAmountDue(subtotal, taxRate string) (Totals, error) {
	sub, err := ParseDecimal(subtotal)
	if err != nil {
		return Totals{}, fmt.Errorf("subtotal: %w", err)
	}
	rate, err := ParseDecimal(taxRate)
	if err != nil {
		return Totals{}, fmt.Errorf("tax rate: %w", err)
	}
	sub = Round2(sub)
	tax := Round2(sub.Mul(rate))
	return Totals{
		Subtotal: FormatMoney(sub),
		Tax:      FormatMoney(tax),
		TotalDue: FormatMoney(Round2(sub.Add(tax))),
	}, nil
}
