package functions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger for development and tests.
type MemoryLedger struct {
	mu           sync.RWMutex
	invoices     []Invoice
	suppliers    []Supplier
	transactions []Transaction
	approvals    []PaymentApproval
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// AddInvoice stores inv, assigning an ID if it has none.
func (l *MemoryLedger) AddInvoice(inv Invoice) Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	l.invoices = append(l.invoices, inv)
	return inv
}

// AddSupplier stores s, assigning an ID if it has none.
func (l *MemoryLedger) AddSupplier(s Supplier) Supplier {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	l.suppliers = append(l.suppliers, s)
	return s
}

// AddTransaction stores tx, assigning an ID if it has none.
func (l *MemoryLedger) AddTransaction(tx Transaction) Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	l.transactions = append(l.transactions, tx)
	return tx
}

// Approvals returns recorded payment approvals.
func (l *MemoryLedger) Approvals() []PaymentApproval {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]PaymentApproval(nil), l.approvals...)
}

func (l *MemoryLedger) SearchInvoices(_ context.Context, tenantID string, f InvoiceFilter) ([]Invoice, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Invoice{}
	for _, inv := range l.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.Supplier != "" && !containsFold(inv.SupplierName, f.Supplier) {
			continue
		}
		if f.DueBefore != "" && (inv.DueOn == "" || inv.DueOn >= f.DueBefore) {
			continue
		}
		out = append(out, inv)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLedger) GetInvoice(_ context.Context, tenantID, idOrNumber string) (*Invoice, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, inv := range l.invoices {
		if inv.TenantID == tenantID && (inv.ID == idOrNumber || inv.Number == idOrNumber) {
			found := inv
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (l *MemoryLedger) UpdateInvoiceStatus(_ context.Context, tenantID, invoiceID, status string) (*Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.invoices {
		if l.invoices[i].TenantID == tenantID && l.invoices[i].ID == invoiceID {
			l.invoices[i].Status = status
			updated := l.invoices[i]
			return &updated, nil
		}
	}
	return nil, ErrNotFound
}

func (l *MemoryLedger) SearchSuppliers(_ context.Context, tenantID string, f SupplierFilter) ([]Supplier, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Supplier{}
	for _, s := range l.suppliers {
		if s.TenantID != tenantID || (f.Name != "" && !containsFold(s.Name, f.Name)) {
			continue
		}
		out = append(out, s)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLedger) SearchTransactions(_ context.Context, tenantID string, f TransactionFilter) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []Transaction{}
	for _, tx := range l.transactions {
		if tx.TenantID != tenantID {
			continue
		}
		if f.From != "" && tx.BookedOn < f.From {
			continue
		}
		if f.To != "" && tx.BookedOn > f.To {
			continue
		}
		if f.Description != "" && !containsFold(tx.Description, f.Description) {
			continue
		}
		out = append(out, tx)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLedger) ApprovePayment(_ context.Context, tenantID, invoiceID, approverID string) (*PaymentApproval, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.invoices {
		inv := &l.invoices[i]
		if inv.TenantID != tenantID || inv.ID != invoiceID {
			continue
		}
		inv.Status = StatusApproved
		a := PaymentApproval{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			InvoiceID:  invoiceID,
			ApprovedBy: approverID,
			Amount:     inv.Amount,
			Currency:   inv.Currency,
			ApprovedAt: time.Now().UTC().Format(time.RFC3339),
		}
		l.approvals = append(l.approvals, a)
		return &a, nil
	}
	return nil, ErrNotFound
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

var _ Ledger = (*MemoryLedger)(nil)
