package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cleared-dev/invoicer/internal/model"
)

// Created is the server's answer to a create call.
type Created struct {
	ID     int64        `json:"id"`
	Status model.Status `json:"status"`
}

type statusRequest struct {
	Status model.Status `json:"status"`
}

// CreateInvoice persists a new invoice. The server assigns the id and the
// initial status (DRAFT).
func (c *Client) CreateInvoice(ctx context.Context, inv model.Invoice) (Created, error) {
	var out Created
	if err := c.do(ctx, http.MethodPost, "/api/invoices", inv, &out, true); err != nil {
		return Created{}, fmt.Errorf("creating invoice: %w", err)
	}
	return out, nil
}

// GetInvoice fetches the authoritative copy of an invoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID int64) (model.Invoice, error) {
	var out model.Invoice
	if err := c.do(ctx, http.MethodGet, invoicePath(invoiceID), nil, &out, true); err != nil {
		return model.Invoice{}, fmt.Errorf("fetching invoice %d: %w", invoiceID, err)
	}
	return out, nil
}

// UpdateInvoice replaces the fields and items of an existing invoice and
// returns the server's confirmation message.
func (c *Client) UpdateInvoice(ctx context.Context, inv model.Invoice) (string, error) {
	var out messageBody
	if err := c.do(ctx, http.MethodPut, invoicePath(inv.ID), inv, &out, true); err != nil {
		return "", fmt.Errorf("updating invoice %d: %w", inv.ID, err)
	}
	return out.Message, nil
}

// UpdateStatus moves an invoice to status and returns the updated record.
func (c *Client) UpdateStatus(ctx context.Context, invoiceID int64, status model.Status) (model.Invoice, error) {
	var out model.Invoice
	path := invoicePath(invoiceID) + "/status"
	if err := c.do(ctx, http.MethodPut, path, statusRequest{Status: status}, &out, true); err != nil {
		return model.Invoice{}, fmt.Errorf("updating invoice %d status: %w", invoiceID, err)
	}
	return out, nil
}

// DeleteInvoice removes an invoice and returns the server's confirmation.
func (c *Client) DeleteInvoice(ctx context.Context, invoiceID int64) (string, error) {
	var out messageBody
	if err := c.do(ctx, http.MethodDelete, invoicePath(invoiceID), nil, &out, true); err != nil {
		return "", fmt.Errorf("deleting invoice %d: %w", invoiceID, err)
	}
	return out.Message, nil
}

func invoicePath(invoiceID int64) string {
	return fmt.Sprintf("/api/invoices/%d", invoiceID)
}
