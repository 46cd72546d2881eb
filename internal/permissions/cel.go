package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

// Role is a user's role within a tenant plus any permissions granted to the
// user directly.
type Role struct {
	Name   string
	Grants []string
}

// RoleSource looks up a user's role. A user without membership in the tenant
// returns ErrNoMembership.
type RoleSource interface {
	RoleFor(ctx context.Context, userID, tenantID string) (Role, error)
}

// ErrNoMembership is returned by a RoleSource for users outside the tenant.
var ErrNoMembership = errors.New("user is not a member of tenant")

// DefaultRules are the CEL expressions evaluated per permission. Each has
// access to role (string), grants (list of string), user_id and tenant_id.
var DefaultRules = map[string]string{
	ViewInvoices:     `role in ["owner", "admin", "accountant", "viewer"] || "view:invoices" in grants`,
	EditInvoices:     `role in ["owner", "admin", "accountant"] || "edit:invoices" in grants`,
	ViewSuppliers:    `role in ["owner", "admin", "accountant", "viewer"] || "view:suppliers" in grants`,
	EditSuppliers:    `role in ["owner", "admin", "accountant"] || "edit:suppliers" in grants`,
	ViewTransactions: `role in ["owner", "admin", "accountant"] || "view:transactions" in grants`,
	ApprovePayments:  `role in ["owner", "admin"] || "approve:payments" in grants`,
	ViewReports:      `role in ["owner", "admin", "accountant"] || "view:reports" in grants`,
	ManageUsers:      `role in ["owner", "admin"]`,
}

// CELAuthority is an Authority that evaluates one CEL rule per permission
// against the user's role.
type CELAuthority struct {
	roles    RoleSource
	programs map[string]cel.Program
	logger   *zap.Logger
}

// NewCELAuthority compiles DefaultRules with overrides applied on top.
// Overrides for unknown permission names are rejected.
func NewCELAuthority(roles RoleSource, overrides map[string]string, logger *zap.Logger) (*CELAuthority, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("grants", cel.ListType(cel.StringType)),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	rules := make(map[string]string, len(DefaultRules))
	for k, v := range DefaultRules {
		rules[k] = v
	}
	for k, v := range overrides {
		if _, ok := DefaultRules[k]; !ok {
			return nil, fmt.Errorf("unknown permission %q in rules", k)
		}
		rules[k] = v
	}

	names := make([]string, 0, len(rules))
	for k := range rules {
		names = append(names, k)
	}
	sort.Strings(names)

	programs := make(map[string]cel.Program, len(rules))
	for _, name := range names {
		ast, issues := env.Compile(rules[name])
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("CEL compile error for %s: %w", name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule for %s must return bool, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("CEL program error for %s: %w", name, err)
		}
		programs[name] = prg
	}

	return &CELAuthority{roles: roles, programs: programs, logger: logger}, nil
}

// CheckPermissions implements Authority. Every known permission is evaluated
// so the set also covers functions outside the current intent. A user with no
// membership gets an empty set.
func (a *CELAuthority) CheckPermissions(ctx context.Context, userID, tenantID string, required []string) (PermissionSet, error) {
	role, err := a.roles.RoleFor(ctx, userID, tenantID)
	if errors.Is(err, ErrNoMembership) {
		a.logger.Info("user has no tenant membership",
			zap.String("user_id", userID),
			zap.String("tenant_id", tenantID))
		return PermissionSet{}, nil
	}
	if err != nil {
		return PermissionSet{}, fmt.Errorf("lookup role: %w", err)
	}

	grants := role.Grants
	if grants == nil {
		grants = []string{}
	}
	activation := map[string]any{
		"role":      role.Name,
		"grants":    grants,
		"user_id":   userID,
		"tenant_id": tenantID,
	}

	var set PermissionSet
	for name, prg := range a.programs {
		out, _, err := prg.Eval(activation)
		if err != nil {
			return PermissionSet{}, fmt.Errorf("CEL eval error for %s: %w", name, err)
		}
		if allowed, ok := out.Value().(bool); ok && allowed {
			set.Grant(name)
		}
	}

	for _, req := range required {
		if !set.Has(req) {
			a.logger.Debug("required permission not granted",
				zap.String("permission", req),
				zap.String("role", role.Name))
		}
	}
	return set, nil
}

// StaticAuthority grants the same set to everyone. Useful for tests and
// single-tenant deployments.
type StaticAuthority struct {
	Set PermissionSet
}

// CheckPermissions implements Authority.
func (s StaticAuthority) CheckPermissions(context.Context, string, string, []string) (PermissionSet, error) {
	return s.Set, nil
}
