package editor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/invoicer/internal/activity"
	"github.com/cleared-dev/invoicer/internal/flash"
	"github.com/cleared-dev/invoicer/internal/ledger"
	"github.com/cleared-dev/invoicer/internal/model"
	"github.com/cleared-dev/invoicer/internal/remote"
	"github.com/cleared-dev/invoicer/internal/validate"
)

// fakeStore is an in-memory Store. Setting an error field makes the next
// call of that method fail.
type fakeStore struct {
	mu       sync.Mutex
	invoices map[int64]model.Invoice
	nextID   int64
	calls    []string

	createErr, getErr, updateErr, statusErr, deleteErr error

	// block, when set, is waited on inside CreateInvoice.
	block chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{invoices: make(map[int64]model.Invoice)}
}

func (s *fakeStore) call(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *fakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func take(err *error) error {
	e := *err
	*err = nil
	return e
}

func (s *fakeStore) CreateInvoice(_ context.Context, inv model.Invoice) (remote.Created, error) {
	s.call("create")
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := take(&s.createErr); err != nil {
		return remote.Created{}, err
	}
	s.nextID++
	inv.ID = s.nextID
	inv.Status = model.StatusDraft
	// The server renumbers items.
	for i := range inv.Items {
		inv.Items[i].ID = 100 + i
	}
	s.invoices[inv.ID] = inv
	return remote.Created{ID: inv.ID, Status: inv.Status}, nil
}

func (s *fakeStore) GetInvoice(_ context.Context, invoiceID int64) (model.Invoice, error) {
	s.call("get")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := take(&s.getErr); err != nil {
		return model.Invoice{}, err
	}
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return model.Invoice{}, &remote.Error{Status: http.StatusNotFound, Message: "Invoice not found"}
	}
	inv.Items = append([]model.LineItem(nil), inv.Items...)
	return inv, nil
}

func (s *fakeStore) UpdateInvoice(_ context.Context, inv model.Invoice) (string, error) {
	s.call("update")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := take(&s.updateErr); err != nil {
		return "", err
	}
	current := s.invoices[inv.ID]
	inv.Status = current.Status
	s.invoices[inv.ID] = inv
	return "Invoice updated successfully", nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, invoiceID int64, status model.Status) (model.Invoice, error) {
	s.call("status")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := take(&s.statusErr); err != nil {
		return model.Invoice{}, err
	}
	inv := s.invoices[invoiceID]
	inv.Status = status
	s.invoices[invoiceID] = inv
	return inv, nil
}

func (s *fakeStore) DeleteInvoice(_ context.Context, invoiceID int64) (string, error) {
	s.call("delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := take(&s.deleteErr); err != nil {
		return "", err
	}
	delete(s.invoices, invoiceID)
	return "Invoice deleted successfully", nil
}

type fakeSessions struct{ user *model.User }

func (f fakeSessions) CurrentUser(context.Context) (*model.User, error) { return f.user, nil }

var (
	plainUser = &model.User{ID: "7", Username: "jane", Roles: []string{model.RoleUser}}
	adminUser = &model.User{ID: "1", Username: "root", Roles: []string{model.RoleUser, model.RoleAdmin}}
)

func deps(store *fakeStore, user *model.User) Deps {
	return Deps{
		Store:    store,
		Sessions: fakeSessions{user: user},
		Banner:   flash.New(0),
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) },
	}
}

func validForm() model.Form {
	return model.Form{
		From: model.Party{Company: "Acme LLC", Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701", Phone: "555-0100"},
		To: model.Party{Name: "Jane Roe", Email: "jane@example.com", Company: "Roe Inc",
			Street: "2 Oak Ave", City: "Shelbyville", State: "IL", Zip: "62565", Phone: "555-0199"},
	}
}

// fill turns the placeholder into a priced item: 10.00 x 2.
func fill(t *testing.T, e *Editor) {
	t.Helper()
	require.NoError(t, e.UpdateItem(1, ledger.FieldDescription, "Consulting"))
	require.NoError(t, e.UpdateItem(1, ledger.FieldUnitPrice, "10.00"))
	require.NoError(t, e.UpdateItem(1, ledger.FieldQuantity, "2"))
}

func flashText(t *testing.T, e *Editor) (flash.Kind, string) {
	t.Helper()
	msg, ok := e.Banner().Current()
	require.True(t, ok, "expected a flash message")
	return msg.Kind, msg.Text
}

func TestNew(t *testing.T) {
	e, err := New(deps(newFakeStore(), plainUser), "0.01")
	require.NoError(t, err)

	d := e.Draft()
	assert.Equal(t, ModeCreate, d.Mode)
	assert.Equal(t, StateEditing, d.State)
	require.Len(t, d.Invoice.Items, 1)
	assert.Equal(t, "1", d.Invoice.Items[0].Quantity)
}

func TestItemIntents(t *testing.T) {
	e, err := New(deps(newFakeStore(), plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	assert.Equal(t, "20.20", e.Draft().Invoice.TotalDue)

	itemID, err := e.AddItem()
	require.NoError(t, err)
	assert.Equal(t, 2, itemID)
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldUnitPrice, "5.00"))
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldQuantity, "3"))

	inv := e.Draft().Invoice
	assert.Equal(t, "35.00", inv.Subtotal)
	assert.Equal(t, "35.35", inv.TotalDue)
	assert.True(t, e.Draft().Modified)
}

func TestRemoveLastItem_Warns(t *testing.T) {
	e, err := New(deps(newFakeStore(), plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)
	before := e.Draft().Invoice

	err = e.RemoveItem(1)
	require.ErrorIs(t, err, ledger.ErrLastItem)

	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindWarning, kind)
	assert.Equal(t, "At least one invoice item is required", text)
	assert.Equal(t, before, e.Draft().Invoice)
}

func TestSubmit_CreateDraft(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	require.NoError(t, e.Submit(context.Background(), validForm(), false))

	d := e.Draft()
	assert.Equal(t, StatePersisted, d.State)
	assert.Equal(t, OutcomeSavedAsDraft, d.Outcome)
	assert.Equal(t, ModeEdit, d.Mode)
	assert.False(t, d.Modified)
	assert.Equal(t, int64(1), d.Invoice.ID)
	assert.Equal(t, model.StatusDraft, d.Invoice.Status)
	assert.Equal(t, []string{"create"}, store.Calls())

	saved := store.invoices[1]
	assert.Equal(t, "7", saved.CreatedBy)
	assert.Equal(t, "20.00", saved.Subtotal)
	assert.Equal(t, "0.20", saved.Tax)
	assert.Equal(t, "20.20", saved.TotalDue)

	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindSuccess, kind)
	assert.Equal(t, "Invoice saved as DRAFT", text)

	log := e.Activity()
	require.Len(t, log, 1)
	assert.Equal(t, "create", log[0].Action)
	assert.Equal(t, "jane", log[0].User)
	assert.Equal(t, activity.ResultOK, log[0].Result)
}

func TestSubmit_CreateAndPublish(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	require.NoError(t, e.Submit(context.Background(), validForm(), true))

	d := e.Draft()
	assert.Equal(t, OutcomeSavedAsPending, d.Outcome)
	assert.Equal(t, model.StatusPending, d.Invoice.Status)
	assert.Equal(t, []string{"create", "status"}, store.Calls())
	_, text := flashText(t, e)
	assert.Equal(t, "Invoice saved as PENDING", text)
}

func TestSubmit_PublishFailureKeepsDraft(t *testing.T) {
	store := newFakeStore()
	store.statusErr = &remote.Error{Status: http.StatusInternalServerError, Message: "status service down"}
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	err = e.Submit(context.Background(), validForm(), true)
	require.ErrorIs(t, err, ErrPublishFailed)

	d := e.Draft()
	assert.Equal(t, StatePersisted, d.State)
	assert.Equal(t, OutcomeSavedAsDraft, d.Outcome)
	assert.Equal(t, model.StatusDraft, d.Invoice.Status)
	_, stillThere := store.invoices[d.Invoice.ID]
	assert.True(t, stillThere, "creation is not rolled back")

	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindError, kind)
	assert.Equal(t, "Failed to save DRAFT as PENDING: status service down", text)
}

func TestSubmit_CommentsTooLong(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	form := validForm()
	form.Comments = strings.Repeat("c", 201)
	err = e.Submit(context.Background(), form, false)

	var verrs validate.Errors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has("comments"))
	assert.Empty(t, store.Calls(), "no remote call on invalid input")
	assert.Equal(t, StateEditing, e.Draft().State)
}

func TestSubmit_InvalidItem(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)
	require.NoError(t, e.UpdateItem(1, ledger.FieldUnitPrice, "abc"))

	err = e.Submit(context.Background(), validForm(), false)
	var verrs validate.Errors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has("items[1].unitPrice"))
	assert.Empty(t, store.Calls())
}

func TestSubmit_CreateFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = &remote.Error{Status: http.StatusBadRequest, Message: "Recipient is blocked"}
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	err = e.Submit(context.Background(), validForm(), false)
	require.Error(t, err)

	d := e.Draft()
	assert.Equal(t, StateEditing, d.State)
	assert.Equal(t, int64(0), d.Invoice.ID)
	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindError, kind)
	assert.Equal(t, "Recipient is blocked", text)

	// The user can re-submit.
	require.NoError(t, e.Submit(context.Background(), validForm(), false))
	assert.Equal(t, StatePersisted, e.Draft().State)
}

func TestSubmit_CreateNeedsLogin(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, nil), "0.01")
	require.NoError(t, err)
	fill(t, e)

	err = e.Submit(context.Background(), validForm(), false)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, store.Calls())
}

func TestSubmit_Busy(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)

	done := make(chan error, 1)
	go func() { done <- e.Submit(context.Background(), validForm(), false) }()

	require.Eventually(t, func() bool { return e.Draft().State == StateSubmitting }, time.Second, time.Millisecond)

	assert.ErrorIs(t, e.Submit(context.Background(), validForm(), false), ErrBusy)
	_, err = e.AddItem()
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, e.Delete(context.Background()), ErrBusy)

	close(store.block)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"create"}, store.Calls())
}

func seeded(t *testing.T, user *model.User) (*fakeStore, *Editor) {
	t.Helper()
	store := newFakeStore()
	form := validForm()
	store.invoices[5] = model.Invoice{
		ID: 5, Status: model.StatusDraft, From: form.From, To: form.To,
		Items:    []model.LineItem{{ID: 1, Description: "Consulting", UnitPrice: "10.00", Quantity: "2", Amount: "20.00"}},
		Subtotal: "20.00", TaxRate: "0.01", Tax: "0.20", TotalDue: "20.20", CreatedBy: "7",
	}
	store.nextID = 5
	e, err := Open(context.Background(), deps(store, user), 5, "0.05")
	require.NoError(t, err)
	return store, e
}

func TestOpen(t *testing.T) {
	_, e := seeded(t, plainUser)

	d := e.Draft()
	assert.Equal(t, ModeEdit, d.Mode)
	assert.Equal(t, StatePersisted, d.State)
	assert.Equal(t, "0.01", d.Invoice.TaxRate, "stored tax rate wins")
	assert.Equal(t, "20.20", d.Invoice.TotalDue)
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open(context.Background(), deps(newFakeStore(), plainUser), 99, "0.01")
	require.Error(t, err)
}

func TestSubmit_UpdateRefetches(t *testing.T) {
	store, e := seeded(t, plainUser)

	itemID, err := e.AddItem()
	require.NoError(t, err)
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldDescription, "Travel"))
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldUnitPrice, "5.00"))
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldQuantity, "3"))

	require.NoError(t, e.Submit(context.Background(), validForm(), false))
	assert.Equal(t, []string{"get", "update", "get"}, store.Calls())

	d := e.Draft()
	assert.Equal(t, StatePersisted, d.State)
	assert.False(t, d.Modified)
	assert.Equal(t, "35.35", d.Invoice.TotalDue)
	assert.Equal(t, "35.35", store.invoices[5].TotalDue)
	_, text := flashText(t, e)
	assert.Equal(t, "Invoice updated successfully", text)
}

func TestSubmit_UpdateUnchanged(t *testing.T) {
	store, e := seeded(t, plainUser)

	err := e.Submit(context.Background(), validForm(), false)
	assert.ErrorIs(t, err, ErrNotModified)
	assert.Equal(t, []string{"get"}, store.Calls())

	form := validForm()
	form.Comments = "Net 30"
	require.NoError(t, e.Submit(context.Background(), form, false), "form changes count as modifications")
}

func TestSubmit_UpdateFailure(t *testing.T) {
	store, e := seeded(t, plainUser)
	store.updateErr = errors.New("connection refused")
	require.NoError(t, e.UpdateItem(1, ledger.FieldQuantity, "3"))

	err := e.Submit(context.Background(), validForm(), false)
	require.Error(t, err)

	d := e.Draft()
	assert.Equal(t, StateEditing, d.State)
	assert.True(t, d.Modified, "local edits are kept")
	_, text := flashText(t, e)
	assert.Equal(t, "connection refused", text)
}

func TestRoundTrip_ItemsAndTotals(t *testing.T) {
	store := newFakeStore()
	e, err := New(deps(store, plainUser), "0.01")
	require.NoError(t, err)
	fill(t, e)
	itemID, err := e.AddItem()
	require.NoError(t, err)
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldDescription, "Travel"))
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldUnitPrice, "5.00"))
	require.NoError(t, e.UpdateItem(itemID, ledger.FieldQuantity, "3"))
	local := e.Draft().Invoice

	require.NoError(t, e.Submit(context.Background(), validForm(), false))

	fetched, err := store.GetInvoice(context.Background(), e.Draft().Invoice.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Items, len(local.Items))
	for i := range local.Items {
		want, got := local.Items[i], fetched.Items[i]
		want.ID, got.ID = 0, 0
		assert.Equal(t, want, got)
	}
	assert.Equal(t, local.Subtotal, fetched.Subtotal)
	assert.Equal(t, local.Tax, fetched.Tax)
	assert.Equal(t, local.TotalDue, fetched.TotalDue)
}

func TestChangeStatus(t *testing.T) {
	tests := []struct {
		name   string
		user   *model.User
		status model.Status
		err    error
	}{
		{"user to pending", plainUser, model.StatusPending, nil},
		{"user to approved", plainUser, model.StatusApproved, ErrForbidden},
		{"user to paid", plainUser, model.StatusPaid, ErrForbidden},
		{"admin to approved", adminUser, model.StatusApproved, nil},
		{"admin to paid", adminUser, model.StatusPaid, nil},
		{"anonymous", nil, model.StatusPending, ErrNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, e := seeded(t, tt.user)
			err := e.ChangeStatus(context.Background(), tt.status)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, []string{"get"}, store.Calls())
				kind, _ := flashText(t, e)
				assert.Equal(t, flash.KindError, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"get", "status", "get"}, store.Calls())
			assert.Equal(t, tt.status, e.Draft().Invoice.Status)
		})
	}
}

func TestChangeStatus_BackToDraft(t *testing.T) {
	store, e := seeded(t, adminUser)

	err := e.ChangeStatus(context.Background(), model.StatusDraft)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, []string{"get"}, store.Calls())

	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindError, kind)
	assert.Equal(t, "Invoices cannot be moved back to DRAFT", text)
}

func TestChangeStatus_Preconditions(t *testing.T) {
	e, err := New(deps(newFakeStore(), adminUser), "0.01")
	require.NoError(t, err)
	assert.ErrorIs(t, e.ChangeStatus(context.Background(), model.StatusPending), ErrNotPersisted)

	_, e = seeded(t, adminUser)
	require.NoError(t, e.UpdateItem(1, ledger.FieldQuantity, "4"))
	assert.ErrorIs(t, e.ChangeStatus(context.Background(), model.StatusPending), ErrUnsavedChanges)
}

func TestChangeStatus_RemoteFailure(t *testing.T) {
	store, e := seeded(t, adminUser)
	store.statusErr = &remote.Error{Status: http.StatusConflict, Message: "Invoice already paid"}

	err := e.ChangeStatus(context.Background(), model.StatusPaid)
	require.Error(t, err)
	assert.Equal(t, StatePersisted, e.Draft().State)
	assert.Equal(t, model.StatusDraft, e.Draft().Invoice.Status)
	_, text := flashText(t, e)
	assert.Equal(t, "Invoice already paid", text)
}

func TestDelete(t *testing.T) {
	store, e := seeded(t, plainUser)

	require.NoError(t, e.Delete(context.Background()))
	assert.Equal(t, StateDeleted, e.Draft().State)
	_, ok := store.invoices[5]
	assert.False(t, ok)

	_, err := e.AddItem()
	assert.ErrorIs(t, err, ErrDeleted)
	assert.ErrorIs(t, e.Delete(context.Background()), ErrDeleted)
}

func TestDelete_FailureFlashes(t *testing.T) {
	store, e := seeded(t, plainUser)
	store.deleteErr = &remote.Error{Status: http.StatusForbidden, Message: "Only drafts can be deleted"}

	err := e.Delete(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatePersisted, e.Draft().State)
	_, ok := store.invoices[5]
	assert.True(t, ok, "invoice left intact")

	kind, text := flashText(t, e)
	assert.Equal(t, flash.KindError, kind)
	assert.Equal(t, "Failed to delete invoice: Only drafts can be deleted", text)

	log := e.Activity()
	require.Len(t, log, 1)
	assert.Equal(t, activity.ResultError, log[0].Result)
}

func TestDelete_NotPersisted(t *testing.T) {
	e, err := New(deps(newFakeStore(), plainUser), "0.01")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Delete(context.Background()), ErrNotPersisted)
}
