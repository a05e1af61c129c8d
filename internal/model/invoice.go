package model

// Status represents the lifecycle state of a persisted invoice.
// The server is authoritative once an invoice exists.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusPaid     Status = "PAID"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusPaid:
		return true
	}
	return false
}

// LineItem is one billable row on an invoice.
type LineItem struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	UnitPrice   string `json:"unitPrice"` // raw user text while editing
	Quantity    string `json:"quantity"`  // raw user text while editing
	Amount      string `json:"amount"`    // always derived, two decimals
}

// Party is an address/contact block on either side of an invoice.
type Party struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty"`
	Company string `json:"company" yaml:"company"`
	Street  string `json:"street" yaml:"street"`
	City    string `json:"city" yaml:"city"`
	State   string `json:"state" yaml:"state"`
	Zip     string `json:"zip" yaml:"zip"`
	Phone   string `json:"phone" yaml:"phone"`
}

// Invoice is the full record exchanged with the remote store.
type Invoice struct {
	ID        int64      `json:"id,omitempty"`
	Status    Status     `json:"status,omitempty"`
	From      Party      `json:"partyFrom"`
	To        Party      `json:"partyTo"`
	Comments  string     `json:"comments,omitempty"`
	Items     []LineItem `json:"items"`
	Subtotal  string     `json:"subtotal"`
	TaxRate   string     `json:"taxRate"`
	Tax       string     `json:"tax"`
	TotalDue  string     `json:"totalDue"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

// Form holds the user-entered invoice fields outside the line items.
type Form struct {
	From     Party  `yaml:"from"`
	To       Party  `yaml:"to"`
	Comments string `yaml:"comments,omitempty"`
}
