package editor

import (
	"context"
	"fmt"

	"github.com/cleared-dev/invoicer/internal/activity"
	"github.com/cleared-dev/invoicer/internal/model"
	"github.com/cleared-dev/invoicer/internal/validate"
)

// Submit validates the draft and persists it. Validation errors are
// returned as validate.Errors and nothing is sent. A new invoice is
// created as DRAFT and, when publish is set, moved to PENDING with a second
// call; an existing invoice is updated and then re-fetched.
func (e *Editor) Submit(ctx context.Context, form model.Form, publish bool) error {
	user, err := e.currentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return err
	}
	payload := e.snapshot(form)
	if errs := validate.Invoice(form, payload.Items); len(errs) > 0 {
		e.mu.Unlock()
		return errs
	}
	if e.mode == ModeEdit && !e.modified && form == e.form {
		e.mu.Unlock()
		return ErrNotModified
	}
	if e.mode == ModeCreate {
		if user == nil {
			e.mu.Unlock()
			e.banner.Error("Log in to create invoices")
			return ErrNotAuthenticated
		}
		payload.CreatedBy = user.ID
	}
	prev, err := e.begin()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	mode := e.mode
	e.mu.Unlock()

	if mode == ModeCreate {
		return e.create(ctx, prev, user, payload, publish)
	}
	return e.update(ctx, prev, user, payload)
}

func (e *Editor) create(ctx context.Context, prev State, user *model.User, payload model.Invoice, publish bool) error {
	created, err := e.store.CreateInvoice(ctx, payload)
	if err != nil {
		e.fail(prev, "create", user, 0, "", err)
		return err
	}

	payload.ID = created.ID
	payload.Status = created.Status
	if payload.Status == "" {
		payload.Status = model.StatusDraft
	}

	e.mu.Lock()
	if err := e.adopt(payload); err != nil {
		e.log.Warn().Err(err).Int64("invoice_id", created.ID).Msg("editor: keeping local items")
	}
	e.mode = ModeEdit
	e.outcome = OutcomeSavedAsDraft
	e.record(user, "create", created.ID, payload.Status, activity.ResultOK, msgSavedDraft)
	if !publish {
		e.state = StatePersisted
		e.mu.Unlock()
		e.log.Info().Int64("invoice_id", created.ID).Msg("editor: invoice created")
		e.banner.Success(msgSavedDraft)
		return nil
	}
	e.mu.Unlock()

	inv, err := e.store.UpdateStatus(ctx, created.ID, model.StatusPending)
	if err != nil {
		// The invoice exists as DRAFT; that is not rolled back.
		e.fail(StatePersisted, "publish", user, created.ID, msgPublishFailed, err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	e.mu.Lock()
	if err := e.adopt(inv); err != nil {
		e.log.Warn().Err(err).Int64("invoice_id", created.ID).Msg("editor: keeping local items")
		e.invoice.Status = model.StatusPending
	}
	e.state = StatePersisted
	e.outcome = OutcomeSavedAsPending
	e.record(user, "publish", created.ID, e.invoice.Status, activity.ResultOK, msgSavedPending)
	e.mu.Unlock()

	e.log.Info().Int64("invoice_id", created.ID).Msg("editor: invoice created and published")
	e.banner.Success(msgSavedPending)
	return nil
}

func (e *Editor) update(ctx context.Context, prev State, user *model.User, payload model.Invoice) error {
	msg, err := e.store.UpdateInvoice(ctx, payload)
	if err != nil {
		e.fail(prev, "update", user, payload.ID, "", err)
		return err
	}
	if msg == "" {
		msg = msgUpdated
	}

	inv, fetchErr := e.store.GetInvoice(ctx, payload.ID)

	e.mu.Lock()
	if fetchErr != nil {
		e.log.Warn().Err(fetchErr).Int64("invoice_id", payload.ID).Msg("editor: re-fetch after update failed")
		inv = payload
	}
	if err := e.adopt(inv); err != nil {
		e.log.Warn().Err(err).Int64("invoice_id", payload.ID).Msg("editor: keeping local items")
		e.modified = false
		e.form = model.Form{From: payload.From, To: payload.To, Comments: payload.Comments}
	}
	e.state = StatePersisted
	e.record(user, "update", payload.ID, e.invoice.Status, activity.ResultOK, msg)
	e.mu.Unlock()

	e.log.Info().Int64("invoice_id", payload.ID).Msg("editor: invoice updated")
	if fetchErr != nil {
		e.banner.Warn(msg + ", but reloading it failed")
	} else {
		e.banner.Success(msg)
	}
	return nil
}

// ChangeStatus moves a saved invoice to status. PENDING is open to any
// logged-in user; APPROVED and PAID need the admin role. DRAFT is only
// ever the initial status.
func (e *Editor) ChangeStatus(ctx context.Context, status model.Status) error {
	user, err := e.currentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return err
	}
	invoiceID := e.invoice.ID
	switch {
	case invoiceID == 0:
		e.mu.Unlock()
		return ErrNotPersisted
	case e.modified:
		e.mu.Unlock()
		return ErrUnsavedChanges
	case status == model.StatusDraft:
		e.mu.Unlock()
		text := "Invoices cannot be moved back to DRAFT"
		e.banner.Error(text)
		return fmt.Errorf("%w: %s", ErrForbidden, text)
	case user == nil:
		e.mu.Unlock()
		e.banner.Error("Log in to change invoice status")
		return ErrNotAuthenticated
	case !user.CanSetStatus(status):
		e.mu.Unlock()
		text := fmt.Sprintf("You are not allowed to mark invoices as %s", status)
		e.banner.Error(text)
		return fmt.Errorf("%w: %s", ErrForbidden, text)
	}
	prev, err := e.begin()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	updated, err := e.store.UpdateStatus(ctx, invoiceID, status)
	if err != nil {
		e.fail(prev, "status", user, invoiceID, "", err)
		return err
	}

	inv, fetchErr := e.store.GetInvoice(ctx, invoiceID)
	if fetchErr != nil {
		e.log.Warn().Err(fetchErr).Int64("invoice_id", invoiceID).Msg("editor: re-fetch after status change failed")
		inv = updated
	}

	text := fmt.Sprintf("Invoice marked as %s", status)
	e.mu.Lock()
	if err := e.adopt(inv); err != nil {
		e.log.Warn().Err(err).Int64("invoice_id", invoiceID).Msg("editor: keeping local items")
		e.invoice.Status = status
	}
	e.state = StatePersisted
	e.record(user, "status", invoiceID, e.invoice.Status, activity.ResultOK, text)
	e.mu.Unlock()

	e.log.Info().Int64("invoice_id", invoiceID).Str("status", string(status)).Msg("editor: status changed")
	e.banner.Success(text)
	return nil
}

// Delete removes a saved invoice. On failure the invoice is left intact
// and the server's message is flashed.
func (e *Editor) Delete(ctx context.Context) error {
	user, err := e.currentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return err
	}
	invoiceID := e.invoice.ID
	if invoiceID == 0 {
		e.mu.Unlock()
		return ErrNotPersisted
	}
	prev, err := e.begin()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	msg, err := e.store.DeleteInvoice(ctx, invoiceID)
	if err != nil {
		e.fail(prev, "delete", user, invoiceID, "Failed to delete invoice", err)
		return err
	}
	if msg == "" {
		msg = msgDeleted
	}

	e.mu.Lock()
	e.state = StateDeleted
	e.record(user, "delete", invoiceID, e.invoice.Status, activity.ResultOK, msg)
	e.mu.Unlock()

	e.log.Info().Int64("invoice_id", invoiceID).Msg("editor: invoice deleted")
	e.banner.Success(msg)
	return nil
}
