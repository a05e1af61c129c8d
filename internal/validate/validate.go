package validate

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
)

// MaxCommentsLen is the maximum number of characters allowed in comments.
const MaxCommentsLen = 200

// FieldError describes one field that failed validation.
type FieldError struct {
	Field   string // e.g. "partyTo.email", "items[2].quantity"
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is the form-level error list. A nil or empty Errors means the
// form is valid.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether field has an error.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Invoice checks the form fields and line items of an invoice.
func Invoice(form model.Form, items []model.LineItem) Errors {
	var errs Errors

	errs = append(errs, party("partyFrom", form.From, false)...)
	errs = append(errs, party("partyTo", form.To, true)...)

	if n := utf8.RuneCountInString(form.Comments); n > MaxCommentsLen {
		errs = append(errs, FieldError{
			Field:   "comments",
			Message: fmt.Sprintf("must be at most %d characters (got %d)", MaxCommentsLen, n),
		})
	}

	if len(items) == 0 {
		errs = append(errs, FieldError{Field: "items", Message: "at least one invoice item is required"})
	}
	for _, it := range items {
		errs = append(errs, item(it)...)
	}

	return errs
}

func party(prefix string, p model.Party, recipient bool) Errors {
	var errs Errors
	required := []struct {
		name, value string
	}{
		{"company", p.Company},
		{"street", p.Street},
		{"city", p.City},
		{"state", p.State},
		{"zip", p.Zip},
		{"phone", p.Phone},
	}
	if recipient {
		required = append(required,
			struct{ name, value string }{"name", p.Name},
			struct{ name, value string }{"email", p.Email},
		)
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, FieldError{Field: prefix + "." + r.name, Message: "is required"})
		}
	}
	if recipient && strings.TrimSpace(p.Email) != "" && !Email(p.Email) {
		errs = append(errs, FieldError{Field: prefix + ".email", Message: "is not a valid email address"})
	}
	return errs
}

// Email reports whether s is a bare, well-formed address.
func Email(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == strings.TrimSpace(s)
}

func item(it model.LineItem) Errors {
	var errs Errors
	prefix := fmt.Sprintf("items[%d]", it.ID)

	if strings.TrimSpace(it.Description) == "" {
		errs = append(errs, FieldError{Field: prefix + ".description", Message: "is required"})
	}

	price, err := ledger.ParseDecimal(it.UnitPrice)
	switch {
	case err != nil:
		errs = append(errs, FieldError{Field: prefix + ".unitPrice", Message: "must be a number"})
	case price.IsNegative():
		errs = append(errs, FieldError{Field: prefix + ".unitPrice", Message: "must not be negative"})
	case !price.Equal(price.Truncate(2)):
		errs = append(errs, FieldError{Field: prefix + ".unitPrice", Message: "must have at most 2 decimal places"})
	}

	qty, err := strconv.Atoi(strings.TrimSpace(it.Quantity))
	switch {
	case err != nil:
		errs = append(errs, FieldError{Field: prefix + ".quantity", Message: "must be a whole number"})
	case qty < 1:
		errs = append(errs, FieldError{Field: prefix + ".quantity", Message: "must be at least 1"})
	}

	return errs
}
