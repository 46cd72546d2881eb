package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

const defaultLimit = 20

// Catalog returns every business function backed by ledger, in the order they
// are offered to the decision maker.
func Catalog(ledger Ledger) []registry.Function {
	h := &handlers{ledger: ledger}
	return []registry.Function{
		{
			Name:               "searchInvoices",
			Description:        "Search the tenant's invoices by status, supplier name or due date.",
			Parameters:         searchInvoicesSchema,
			RequiredPermission: permissions.ViewInvoices,
			Handler:            h.searchInvoices,
		},
		{
			Name:               "getInvoice",
			Description:        "Fetch one invoice by id or invoice number.",
			Parameters:         getInvoiceSchema,
			RequiredPermission: permissions.ViewInvoices,
			Handler:            h.getInvoice,
		},
		{
			Name:               "updateInvoiceStatus",
			Description:        "Change the status of an invoice.",
			Parameters:         updateInvoiceStatusSchema,
			RequiredPermission: permissions.EditInvoices,
			Handler:            h.updateInvoiceStatus,
		},
		{
			Name:               "searchSuppliers",
			Description:        "Search suppliers by name.",
			Parameters:         searchSuppliersSchema,
			RequiredPermission: permissions.ViewSuppliers,
			Handler:            h.searchSuppliers,
		},
		{
			Name:               "searchTransactions",
			Description:        "Search bank transactions by date range or description.",
			Parameters:         searchTransactionsSchema,
			RequiredPermission: permissions.ViewTransactions,
			Handler:            h.searchTransactions,
		},
		{
			Name:               "approvePayment",
			Description:        "Approve payment of an unpaid or overdue invoice.",
			Parameters:         approvePaymentSchema,
			RequiredPermission: permissions.ApprovePayments,
			Handler:            h.approvePayment,
		},
		{
			Name:               "generateReport",
			Description:        "Summarise invoices by status, or outstanding amounts by supplier.",
			Parameters:         generateReportSchema,
			RequiredPermission: permissions.ViewReports,
			Handler:            h.generateReport,
		},
		{
			Name:        "getHelp",
			Description: "Explain what the assistant can do for the current user.",
			Parameters:  `{"type": "object", "additionalProperties": false}`,
			Handler:     h.getHelp,
		},
	}
}

type handlers struct {
	ledger Ledger
}

// decode maps validated parameters onto a typed struct.
func decode(params map[string]any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}

func limitOr(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func (h *handlers) searchInvoices(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var f InvoiceFilter
	if err := decode(params, &f); err != nil {
		return nil, err
	}
	f.Limit = limitOr(f.Limit)
	invoices, err := h.ledger.SearchInvoices(ctx, p.TenantID, f)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, inv := range invoices {
		total += inv.Amount
	}
	return map[string]any{
		"count":    len(invoices),
		"total":    total,
		"invoices": invoices,
	}, nil
}

func (h *handlers) getInvoice(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var in struct {
		Invoice string `json:"invoice"`
	}
	if err := decode(params, &in); err != nil {
		return nil, err
	}
	return h.ledger.GetInvoice(ctx, p.TenantID, in.Invoice)
}

func (h *handlers) updateInvoiceStatus(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var in struct {
		InvoiceID string `json:"invoice_id"`
		Status    string `json:"status"`
	}
	if err := decode(params, &in); err != nil {
		return nil, err
	}
	current, err := h.ledger.GetInvoice(ctx, p.TenantID, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusPaid || current.Status == StatusVoid {
		return nil, fmt.Errorf("invoice %s is %s and can no longer change", current.Number, current.Status)
	}
	return h.ledger.UpdateInvoiceStatus(ctx, p.TenantID, current.ID, in.Status)
}

func (h *handlers) searchSuppliers(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var f SupplierFilter
	if err := decode(params, &f); err != nil {
		return nil, err
	}
	f.Limit = limitOr(f.Limit)
	suppliers, err := h.ledger.SearchSuppliers(ctx, p.TenantID, f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(suppliers), "suppliers": suppliers}, nil
}

func (h *handlers) searchTransactions(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var f TransactionFilter
	if err := decode(params, &f); err != nil {
		return nil, err
	}
	f.Limit = limitOr(f.Limit)
	txs, err := h.ledger.SearchTransactions(ctx, p.TenantID, f)
	if err != nil {
		return nil, err
	}
	var net float64
	for _, tx := range txs {
		net += tx.Amount
	}
	return map[string]any{"count": len(txs), "net": net, "transactions": txs}, nil
}

func (h *handlers) approvePayment(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var in struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := decode(params, &in); err != nil {
		return nil, err
	}
	inv, err := h.ledger.GetInvoice(ctx, p.TenantID, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusUnpaid && inv.Status != StatusOverdue {
		return nil, fmt.Errorf("invoice %s is %s, only unpaid or overdue invoices can be approved", inv.Number, inv.Status)
	}
	return h.ledger.ApprovePayment(ctx, p.TenantID, inv.ID, p.UserID)
}

type statusSummary struct {
	Status string  `json:"status"`
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
}

type supplierSummary struct {
	Supplier    string  `json:"supplier"`
	Count       int     `json:"count"`
	Outstanding float64 `json:"outstanding"`
}

func (h *handlers) generateReport(ctx context.Context, params map[string]any, p registry.Principal) (any, error) {
	var in struct {
		Report string `json:"report"`
	}
	if err := decode(params, &in); err != nil {
		return nil, err
	}
	invoices, err := h.ledger.SearchInvoices(ctx, p.TenantID, InvoiceFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}

	switch in.Report {
	case "outstanding_by_supplier":
		bySupplier := map[string]*supplierSummary{}
		for _, inv := range invoices {
			if inv.Status != StatusUnpaid && inv.Status != StatusOverdue {
				continue
			}
			s, ok := bySupplier[inv.SupplierName]
			if !ok {
				s = &supplierSummary{Supplier: inv.SupplierName}
				bySupplier[inv.SupplierName] = s
			}
			s.Count++
			s.Outstanding += inv.Amount
		}
		rows := make([]supplierSummary, 0, len(bySupplier))
		for _, s := range bySupplier {
			rows = append(rows, *s)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Outstanding > rows[j].Outstanding })
		return map[string]any{"report": in.Report, "rows": rows}, nil

	default:
		byStatus := map[string]*statusSummary{}
		for _, inv := range invoices {
			s, ok := byStatus[inv.Status]
			if !ok {
				s = &statusSummary{Status: inv.Status}
				byStatus[inv.Status] = s
			}
			s.Count++
			s.Total += inv.Amount
		}
		rows := make([]statusSummary, 0, len(byStatus))
		for _, s := range byStatus {
			rows = append(rows, *s)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
		return map[string]any{"report": "invoices_by_status", "rows": rows}, nil
	}
}

var capabilities = []struct {
	permission string
	text       string
}{
	{permissions.ViewInvoices, "look up invoices and their status"},
	{permissions.EditInvoices, "update invoice statuses"},
	{permissions.ViewSuppliers, "find supplier details"},
	{permissions.ViewTransactions, "search bank transactions"},
	{permissions.ApprovePayments, "approve invoice payments"},
	{permissions.ViewReports, "summarise invoices and outstanding balances"},
}

func (h *handlers) getHelp(_ context.Context, _ map[string]any, p registry.Principal) (any, error) {
	canDo := []string{}
	for _, c := range capabilities {
		if p.Has(c.permission) {
			canDo = append(canDo, c.text)
		}
	}
	return map[string]any{"capabilities": canDo}, nil
}
