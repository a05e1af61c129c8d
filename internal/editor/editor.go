package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/invoicer/internal/activity"
	"github.com/cleared-dev/invoicer/internal/flash"
	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
	"github.com/cleared-dev/invoicer/internal/remote"
)

var (
	// ErrBusy is returned while another operation on the same draft is in
	// flight.
	ErrBusy = errors.New("another operation is in progress")
	// ErrNotModified is returned when an edited invoice is submitted
	// without changes.
	ErrNotModified = errors.New("invoice has no changes")
	// ErrNotPersisted is returned by operations that need a saved invoice.
	ErrNotPersisted = errors.New("invoice has not been saved")
	// ErrUnsavedChanges is returned when a status change would discard
	// local edits.
	ErrUnsavedChanges = errors.New("invoice has unsaved changes")
	// ErrNotAuthenticated is returned when no user is logged in.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrForbidden is returned when the user's roles do not allow a
	// status transition.
	ErrForbidden = errors.New("not allowed")
	// ErrPublishFailed is returned when an invoice was created as DRAFT but
	// the follow-up transition to PENDING failed.
	ErrPublishFailed = errors.New("failed to save DRAFT as PENDING")
	// ErrDeleted is returned for any operation after a successful delete.
	ErrDeleted = errors.New("invoice was deleted")
)

// Store is the remote invoice store.
type Store interface {
	CreateInvoice(ctx context.Context, inv model.Invoice) (remote.Created, error)
	GetInvoice(ctx context.Context, invoiceID int64) (model.Invoice, error)
	UpdateInvoice(ctx context.Context, inv model.Invoice) (string, error)
	UpdateStatus(ctx context.Context, invoiceID int64, status model.Status) (model.Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceID int64) (string, error)
}

// Sessions resolves the logged-in user.
type Sessions interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Mode says whether the editor started from a new or an existing invoice.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// State is the workflow state.
type State string

const (
	StateEditing    State = "EDITING"
	StateSubmitting State = "SUBMITTING"
	StatePersisted  State = "PERSISTED"
	StateDeleted    State = "DELETED"
)

// Outcome distinguishes how a newly created invoice ended up.
type Outcome string

const (
	OutcomeNone           Outcome = ""
	OutcomeSavedAsDraft   Outcome = "SAVED_AS_DRAFT"
	OutcomeSavedAsPending Outcome = "SAVED_AS_PENDING"
)

// Flash texts.
const (
	msgLastItem      = "At least one invoice item is required"
	msgSavedDraft    = "Invoice saved as DRAFT"
	msgSavedPending  = "Invoice saved as PENDING"
	msgUpdated       = "Invoice updated"
	msgPublishFailed = "Failed to save DRAFT as PENDING"
	msgDeleted       = "Invoice deleted"
)

// Deps are the collaborators of an Editor.
type Deps struct {
	Store    Store
	Sessions Sessions
	Banner   *flash.Banner
	Log      zerolog.Logger
	Now      func() time.Time
}

// Draft is a point-in-time copy of the editor's invoice.
type Draft struct {
	Mode     Mode
	State    State
	Outcome  Outcome
	Modified bool
	Invoice  model.Invoice
}

// Editor drives one invoice through editing and submission. All methods
// are safe for concurrent use; a second mutating call while one is in
// flight fails with ErrBusy instead of queuing.
type Editor struct {
	mu       sync.Mutex
	store    Store
	sessions Sessions
	banner   *flash.Banner
	log      zerolog.Logger
	now      func() time.Time

	mode     Mode
	state    State
	outcome  Outcome
	modified bool
	invoice  model.Invoice // id, status, creator
	form     model.Form
	ledger   ledger.Ledger
	activity []activity.Entry
}

func newEditor(deps Deps, mode Mode) *Editor {
	e := &Editor{
		store:    deps.Store,
		sessions: deps.Sessions,
		banner:   deps.Banner,
		log:      deps.Log,
		now:      deps.Now,
		mode:     mode,
		state:    StateEditing,
	}
	if e.banner == nil {
		e.banner = flash.New(flash.DefaultTTL)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// New starts a new invoice holding one placeholder item.
func New(deps Deps, taxRate string) (*Editor, error) {
	e := newEditor(deps, ModeCreate)
	l, err := ledger.New(taxRate, ledger.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	e.ledger = l
	return e, nil
}

// Open loads an existing invoice from the store for editing. taxRate is
// used when the stored invoice carries none.
func Open(ctx context.Context, deps Deps, invoiceID int64, taxRate string) (*Editor, error) {
	e := newEditor(deps, ModeEdit)
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.TaxRate == "" {
		inv.TaxRate = taxRate
	}
	if err := e.adopt(inv); err != nil {
		return nil, fmt.Errorf("loading invoice %d: %w", invoiceID, err)
	}
	e.state = StatePersisted
	return e, nil
}

// adopt replaces local state with a server record. Callers hold mu or own
// e exclusively.
func (e *Editor) adopt(inv model.Invoice) error {
	rate := inv.TaxRate
	if rate == "" {
		rate = e.ledger.TaxRate()
	}
	l, err := ledger.FromItems(inv.Items, rate, ledger.WithLogger(e.log))
	if err != nil {
		return err
	}
	e.ledger = l
	e.invoice = model.Invoice{ID: inv.ID, Status: inv.Status, CreatedBy: inv.CreatedBy}
	e.form = model.Form{From: inv.From, To: inv.To, Comments: inv.Comments}
	e.modified = false
	return nil
}

// Draft returns a copy of the current invoice with its items and totals.
func (e *Editor) Draft() Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Draft{
		Mode:     e.mode,
		State:    e.state,
		Outcome:  e.outcome,
		Modified: e.modified,
		Invoice:  e.snapshot(e.form),
	}
}

// Ledger returns the current ledger value.
func (e *Editor) Ledger() ledger.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger
}

// Banner returns the flash banner the editor reports to.
func (e *Editor) Banner() *flash.Banner { return e.banner }

// Activity returns the entries recorded for mutating operations.
func (e *Editor) Activity() []activity.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]activity.Entry(nil), e.activity...)
}

func (e *Editor) snapshot(form model.Form) model.Invoice {
	totals := e.ledger.Totals()
	return model.Invoice{
		ID:        e.invoice.ID,
		Status:    e.invoice.Status,
		CreatedBy: e.invoice.CreatedBy,
		From:      form.From,
		To:        form.To,
		Comments:  form.Comments,
		Items:     e.ledger.Items(),
		Subtotal:  totals.Subtotal,
		TaxRate:   e.ledger.TaxRate(),
		Tax:       totals.Tax,
		TotalDue:  totals.TotalDue,
	}
}

// editable checks that local edits are allowed. Callers hold mu.
func (e *Editor) editable() error {
	switch e.state {
	case StateSubmitting:
		return ErrBusy
	case StateDeleted:
		return ErrDeleted
	}
	return nil
}

// touch records a settled local edit. Callers hold mu.
func (e *Editor) touch(l ledger.Ledger) {
	e.ledger = l
	e.modified = true
	e.state = StateEditing
}

// AddItem appends an empty line item and returns its id.
func (e *Editor) AddItem() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return 0, err
	}
	l := e.ledger.AddItem()
	items := l.Items()
	e.touch(l)
	return items[len(items)-1].ID, nil
}

// RemoveItem deletes a line item. Removing the last item is refused with a
// warning flash and leaves the draft untouched.
func (e *Editor) RemoveItem(itemID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	l, err := e.ledger.RemoveItem(itemID)
	if errors.Is(err, ledger.ErrLastItem) {
		e.banner.Warn(msgLastItem)
		return err
	}
	if err != nil {
		return err
	}
	e.touch(l)
	return nil
}

// UpdateItem sets one field of a line item to the user's raw text.
func (e *Editor) UpdateItem(itemID int, field ledger.Field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	l, err := e.ledger.UpdateField(itemID, field, value)
	if err != nil {
		return err
	}
	e.touch(l)
	return nil
}

// begin moves to SUBMITTING and returns the state to restore on failure.
// Callers hold mu.
func (e *Editor) begin() (State, error) {
	if err := e.editable(); err != nil {
		return "", err
	}
	prev := e.state
	e.state = StateSubmitting
	return prev, nil
}

func (e *Editor) currentUser(ctx context.Context) (*model.User, error) {
	if e.sessions == nil {
		return nil, nil
	}
	return e.sessions.CurrentUser(ctx)
}

// fail restores state after a remote failure, flashes the server's message
// and records the attempt.
func (e *Editor) fail(prev State, action string, user *model.User, invoiceID int64, prefix string, err error) {
	text := remote.Message(err)
	if prefix != "" {
		text = prefix + ": " + text
	}
	e.log.Error().Err(err).Str("action", action).Int64("invoice_id", invoiceID).Msg("editor: remote call failed")

	e.mu.Lock()
	e.state = prev
	e.record(user, action, invoiceID, "", activity.ResultError, text)
	e.mu.Unlock()

	e.banner.Error(text)
}

// record appends an activity entry. Callers hold mu.
func (e *Editor) record(user *model.User, action string, invoiceID int64, status model.Status, result, message string) {
	name := ""
	if user != nil {
		name = user.Username
	}
	e.activity = append(e.activity, activity.Entry{
		Timestamp: e.now(),
		User:      name,
		Action:    action,
		InvoiceID: invoiceID,
		Status:    string(status),
		Result:    result,
		Message:   message,
	})
}
