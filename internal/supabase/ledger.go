package supabase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"

	"github.com/fyrsmithlabs/ledgerd/internal/functions"
)

func (c *Client) SearchInvoices(_ context.Context, tenantID string, f functions.InvoiceFilter) ([]functions.Invoice, error) {
	q := c.db.From(tableInvoices).
		Select("*", "", false).
		Eq("tenant_id", tenantID)
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	if f.Supplier != "" {
		q = q.Ilike("supplier_name", "*"+f.Supplier+"*")
	}
	if f.DueBefore != "" {
		q = q.Lt("due_on", f.DueBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit, "")
	}

	invoices := []functions.Invoice{}
	if _, err := q.Order("due_on", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&invoices); err != nil {
		return nil, fmt.Errorf("failed to search invoices: %w", err)
	}
	return invoices, nil
}

func (c *Client) GetInvoice(_ context.Context, tenantID, idOrNumber string) (*functions.Invoice, error) {
	column := "number"
	if _, err := uuid.Parse(idOrNumber); err == nil {
		column = "id"
	}

	var rows []functions.Invoice
	_, err := c.db.From(tableInvoices).
		Select("*", "", false).
		Eq("tenant_id", tenantID).
		Eq(column, idOrNumber).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if len(rows) == 0 {
		return nil, functions.ErrNotFound
	}
	return &rows[0], nil
}

func (c *Client) UpdateInvoiceStatus(_ context.Context, tenantID, invoiceID, status string) (*functions.Invoice, error) {
	var rows []functions.Invoice
	_, err := c.db.From(tableInvoices).
		Update(map[string]any{"status": status}, "representation", "").
		Eq("tenant_id", tenantID).
		Eq("id", invoiceID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	if len(rows) == 0 {
		return nil, functions.ErrNotFound
	}
	return &rows[0], nil
}

func (c *Client) SearchSuppliers(_ context.Context, tenantID string, f functions.SupplierFilter) ([]functions.Supplier, error) {
	q := c.db.From(tableSuppliers).
		Select("*", "", false).
		Eq("tenant_id", tenantID)
	if f.Name != "" {
		q = q.Ilike("name", "*"+f.Name+"*")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit, "")
	}

	suppliers := []functions.Supplier{}
	if _, err := q.ExecuteTo(&suppliers); err != nil {
		return nil, fmt.Errorf("failed to search suppliers: %w", err)
	}
	return suppliers, nil
}

func (c *Client) SearchTransactions(_ context.Context, tenantID string, f functions.TransactionFilter) ([]functions.Transaction, error) {
	q := c.db.From(tableTransactions).
		Select("*", "", false).
		Eq("tenant_id", tenantID)
	switch {
	case f.From != "" && f.To != "":
		// Filters are keyed by column, so a closed range goes through a
		// single logical group.
		q = q.Or(fmt.Sprintf("and(booked_on.gte.%s,booked_on.lte.%s)", f.From, f.To), "")
	case f.From != "":
		q = q.Gte("booked_on", f.From)
	case f.To != "":
		q = q.Lte("booked_on", f.To)
	}
	if f.Description != "" {
		q = q.Ilike("description", "*"+f.Description+"*")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit, "")
	}

	txs := []functions.Transaction{}
	if _, err := q.Order("booked_on", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&txs); err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}
	return txs, nil
}

// ApprovePayment records the approval and then marks the invoice approved.
func (c *Client) ApprovePayment(ctx context.Context, tenantID, invoiceID, approverID string) (*functions.PaymentApproval, error) {
	inv, err := c.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	approval := functions.PaymentApproval{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		InvoiceID:  inv.ID,
		ApprovedBy: approverID,
		Amount:     inv.Amount,
		Currency:   inv.Currency,
		ApprovedAt: c.timestamp(),
	}
	if _, _, err := c.db.From(tableApprovals).Insert(approval, false, "", "minimal", "").Execute(); err != nil {
		return nil, fmt.Errorf("failed to record payment approval: %w", err)
	}
	if _, err := c.UpdateInvoiceStatus(ctx, tenantID, inv.ID, functions.StatusApproved); err != nil {
		return nil, err
	}
	return &approval, nil
}

var _ functions.Ledger = (*Client)(nil)
