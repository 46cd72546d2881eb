// Package functions is the catalog of business functions offered to the
// decision maker. Handlers read and change tenant data through a Ledger.
package functions

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Ledger when a record does not exist within the
// tenant.
var ErrNotFound = errors.New("record not found")

// Invoice statuses.
const (
	StatusDraft    = "draft"
	StatusUnpaid   = "unpaid"
	StatusOverdue  = "overdue"
	StatusApproved = "approved"
	StatusPaid     = "paid"
	StatusVoid     = "void"
)

// Invoice is a supplier invoice.
type Invoice struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Number       string  `json:"number"`
	SupplierID   string  `json:"supplier_id,omitempty"`
	SupplierName string  `json:"supplier_name"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	IssuedOn     string  `json:"issued_on,omitempty"`
	DueOn        string  `json:"due_on,omitempty"`
}

// Supplier is a tenant's supplier.
type Supplier struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	VATNumber string `json:"vat_number,omitempty"`
}

// Transaction is a bank or ledger transaction.
type Transaction struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	BookedOn    string  `json:"booked_on"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Account     string  `json:"account,omitempty"`
}

// PaymentApproval records who approved paying an invoice.
type PaymentApproval struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	InvoiceID  string  `json:"invoice_id"`
	ApprovedBy string  `json:"approved_by"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	ApprovedAt string  `json:"approved_at,omitempty"`
}

// InvoiceFilter narrows SearchInvoices. Zero fields do not filter.
type InvoiceFilter struct {
	Status    string `json:"status,omitempty"`
	Supplier  string `json:"supplier,omitempty"`
	DueBefore string `json:"due_before,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// SupplierFilter narrows SearchSuppliers.
type SupplierFilter struct {
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// TransactionFilter narrows SearchTransactions.
type TransactionFilter struct {
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Description string `json:"description,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Ledger is the tenant data the catalog works on. Every call is scoped to
// tenantID.
type Ledger interface {
	SearchInvoices(ctx context.Context, tenantID string, f InvoiceFilter) ([]Invoice, error)
	GetInvoice(ctx context.Context, tenantID, idOrNumber string) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, tenantID, invoiceID, status string) (*Invoice, error)
	SearchSuppliers(ctx context.Context, tenantID string, f SupplierFilter) ([]Supplier, error)
	SearchTransactions(ctx context.Context, tenantID string, f TransactionFilter) ([]Transaction, error)
	ApprovePayment(ctx context.Context, tenantID, invoiceID, approverID string) (*PaymentApproval, error)
}
