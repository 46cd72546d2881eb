// Package permissions maps classified intents to the permissions they need,
// asks an Authority which of them a user holds, and works out which proposed
// functions the user may not run.
package permissions

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

// Permission names.
const (
	ViewInvoices     = "view:invoices"
	EditInvoices     = "edit:invoices"
	ViewSuppliers    = "view:suppliers"
	EditSuppliers    = "edit:suppliers"
	ViewTransactions = "view:transactions"
	ApprovePayments  = "approve:payments"
	ViewReports      = "view:reports"
	ManageUsers      = "manage:users"
)

// All lists every permission name in a stable order.
var All = []string{
	ViewInvoices,
	EditInvoices,
	ViewSuppliers,
	EditSuppliers,
	ViewTransactions,
	ApprovePayments,
	ViewReports,
	ManageUsers,
}

// requiredBySubType is the static intent sub-type table.
var requiredBySubType = map[string][]string{
	"invoice_query":     {ViewInvoices},
	"invoice_update":    {ViewInvoices, EditInvoices},
	"supplier_query":    {ViewSuppliers},
	"supplier_update":   {ViewSuppliers, EditSuppliers},
	"transaction_query": {ViewTransactions},
	"payment_approval":  {ViewInvoices, ApprovePayments},
	"report_request":    {ViewReports},
	"user_management":   {ManageUsers},
}

// PermissionSet is the structured answer of an Authority.
type PermissionSet struct {
	ViewInvoices     bool `json:"view_invoices"`
	EditInvoices     bool `json:"edit_invoices"`
	ViewSuppliers    bool `json:"view_suppliers"`
	EditSuppliers    bool `json:"edit_suppliers"`
	ViewTransactions bool `json:"view_transactions"`
	ApprovePayments  bool `json:"approve_payments"`
	ViewReports      bool `json:"view_reports"`
	ManageUsers      bool `json:"manage_users"`
}

// field returns a pointer to the flag for name, or nil for unknown names.
func (s *PermissionSet) field(name string) *bool {
	switch name {
	case ViewInvoices:
		return &s.ViewInvoices
	case EditInvoices:
		return &s.EditInvoices
	case ViewSuppliers:
		return &s.ViewSuppliers
	case EditSuppliers:
		return &s.EditSuppliers
	case ViewTransactions:
		return &s.ViewTransactions
	case ApprovePayments:
		return &s.ApprovePayments
	case ViewReports:
		return &s.ViewReports
	case ManageUsers:
		return &s.ManageUsers
	}
	return nil
}

// Grant sets the named permission. Unknown names are ignored.
func (s *PermissionSet) Grant(name string) {
	if f := s.field(name); f != nil {
		*f = true
	}
}

// Has reports whether the named permission is set.
func (s PermissionSet) Has(name string) bool {
	f := s.field(name)
	return f != nil && *f
}

// FromNames builds a set from permission names.
func FromNames(names ...string) PermissionSet {
	var s PermissionSet
	for _, n := range names {
		s.Grant(n)
	}
	return s
}

// Flatten returns the granted permission names in the order of All.
func Flatten(s PermissionSet) []string {
	out := make([]string, 0, len(All))
	for _, name := range All {
		if s.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Authority decides which permissions a user holds within a tenant.
type Authority interface {
	CheckPermissions(ctx context.Context, userID, tenantID string, required []string) (PermissionSet, error)
}

// RequiredPermissions returns the permissions an intent needs. Unknown
// sub-types need none.
func RequiredPermissions(intent conversation.Intent) []string {
	req := requiredBySubType[intent.SubType]
	out := make([]string, len(req))
	copy(out, req)
	return out
}

// Resolver combines the sub-type table, an Authority and the function registry.
type Resolver struct {
	authority Authority
	registry  *registry.Registry
}

// NewResolver returns a Resolver.
func NewResolver(authority Authority, reg *registry.Registry) *Resolver {
	return &Resolver{authority: authority, registry: reg}
}

// RequiredPermissions is the package-level RequiredPermissions.
func (r *Resolver) RequiredPermissions(intent conversation.Intent) []string {
	return RequiredPermissions(intent)
}

// GrantedPermissions asks the authority for the user's permissions.
func (r *Resolver) GrantedPermissions(ctx context.Context, userID, tenantID string, required []string) (PermissionSet, error) {
	set, err := r.authority.CheckPermissions(ctx, userID, tenantID, required)
	if err != nil {
		return PermissionSet{}, fmt.Errorf("check permissions for %s: %w", userID, err)
	}
	return set, nil
}

// DeniedFunctionNames returns, in proposal order and without repeats, every
// function d proposes whose required permission is not in granted. Functions
// the registry does not know are not reported here.
func (r *Resolver) DeniedFunctionNames(d *decision.Decision, granted []string) []string {
	denied := []string{}
	if d == nil {
		return denied
	}
	have := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		have[g] = struct{}{}
	}
	seen := make(map[string]struct{})
	for _, call := range d.Functions {
		fn, ok := r.registry.Lookup(call.Name)
		if !ok || fn.RequiredPermission == "" {
			continue
		}
		if _, ok := have[fn.RequiredPermission]; ok {
			continue
		}
		if _, dup := seen[call.Name]; dup {
			continue
		}
		seen[call.Name] = struct{}{}
		denied = append(denied, call.Name)
	}
	return denied
}
