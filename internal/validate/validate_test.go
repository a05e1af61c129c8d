package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/invoicer/internal/model"
)

func validForm() model.Form {
	return model.Form{
		From: model.Party{
			Company: "Acme LLC", Street: "1 Main St", City: "Springfield",
			State: "IL", Zip: "62701", Phone: "555-0100",
		},
		To: model.Party{
			Name: "Jane Roe", Email: "jane@example.com",
			Company: "Roe Inc", Street: "2 Oak Ave", City: "Shelbyville",
			State: "IL", Zip: "62565", Phone: "555-0199",
		},
		Comments: "Net 30",
	}
}

func validItems() []model.LineItem {
	return []model.LineItem{
		{ID: 1, Description: "Consulting", UnitPrice: "10.00", Quantity: "2", Amount: "20.00"},
	}
}

func TestInvoice_Valid(t *testing.T) {
	errs := Invoice(validForm(), validItems())
	assert.Empty(t, errs)
}

func TestInvoice_CommentsTooLong(t *testing.T) {
	form := validForm()
	form.Comments = strings.Repeat("x", 201)

	errs := Invoice(form, validItems())
	require.Len(t, errs, 1)
	assert.True(t, errs.Has("comments"))

	form.Comments = strings.Repeat("é", 200)
	assert.Empty(t, Invoice(form, validItems()), "limit counts characters, not bytes")
}

func TestInvoice_RequiredParties(t *testing.T) {
	form := model.Form{}
	errs := Invoice(form, validItems())

	for _, f := range []string{
		"partyFrom.company", "partyFrom.street", "partyFrom.city",
		"partyFrom.state", "partyFrom.zip", "partyFrom.phone",
		"partyTo.company", "partyTo.name", "partyTo.email",
	} {
		assert.True(t, errs.Has(f), "expected error on %s", f)
	}
	assert.False(t, errs.Has("partyFrom.name"), "sender name is optional")
	assert.False(t, errs.Has("partyFrom.email"), "sender email is optional")
}

func TestInvoice_Email(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"jane@example.com", true},
		{"jane.roe+billing@example.co.uk", true},
		{"jane", false},
		{"@example.com", false},
		{"Jane <jane@example.com>", false},
	}
	for _, tt := range tests {
		form := validForm()
		form.To.Email = tt.email
		errs := Invoice(form, validItems())
		assert.Equal(t, !tt.ok, errs.Has("partyTo.email"), "email %q", tt.email)
	}
}

func TestInvoice_Items(t *testing.T) {
	tests := []struct {
		name  string
		item  model.LineItem
		field string
	}{
		{"blank description", model.LineItem{ID: 3, Description: " ", UnitPrice: "1.00", Quantity: "1"}, "items[3].description"},
		{"price not a number", model.LineItem{ID: 3, Description: "a", UnitPrice: "abc", Quantity: "1"}, "items[3].unitPrice"},
		{"negative price", model.LineItem{ID: 3, Description: "a", UnitPrice: "-1", Quantity: "1"}, "items[3].unitPrice"},
		{"three decimals", model.LineItem{ID: 3, Description: "a", UnitPrice: "1.005", Quantity: "1"}, "items[3].unitPrice"},
		{"fractional quantity", model.LineItem{ID: 3, Description: "a", UnitPrice: "1", Quantity: "1.5"}, "items[3].quantity"},
		{"zero quantity", model.LineItem{ID: 3, Description: "a", UnitPrice: "1", Quantity: "0"}, "items[3].quantity"},
	}
	for _, tt := range tests {
		errs := Invoice(validForm(), []model.LineItem{tt.item})
		require.Len(t, errs, 1, tt.name)
		assert.Equal(t, tt.field, errs[0].Field, tt.name)
	}
}

func TestInvoice_NoItems(t *testing.T) {
	errs := Invoice(validForm(), nil)
	assert.True(t, errs.Has("items"))
}

func TestErrors_Error(t *testing.T) {
	errs := Errors{
		{Field: "comments", Message: "too long"},
		{Field: "partyTo.email", Message: "is required"},
	}
	assert.Equal(t, "validation failed: comments: too long; partyTo.email: is required", errs.Error())
}

func TestInvoice_PriceOutOfRange(t *testing.T) {
	for _, price := range []string{"1e400", "1e2000000", "1e-2000000"} {
		items := validItems()
		items[0].UnitPrice = price
		errs := Invoice(validForm(), items)
		assert.True(t, errs.Has("items[1].unitPrice"), "price %q", price)
	}
}
