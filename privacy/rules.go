package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/veloxrm"
)

// Viewer represents the authenticated user committing changes.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier, or an empty string.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string {
	return v.UserID
}

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string {
	return v.Roles
}

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string {
	return v.TenantID
}

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
func DenyIfNoViewer() MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has role.
func HasRole(role string) MutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// given roles, and skips otherwise.
func HasAnyRole(roles ...string) MutationRule {
	return ContextMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows access if the field of the written
// record holds the viewer's ID.
//
//	privacy.OnTables(privacy.IsOwner("user_id"), "author")
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloxrm.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := m.Field(field)
		if !ok || value == nil {
			return Skip
		}
		if fmt.Sprint(value) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a rule that allows access if the viewer's tenant
// matches the field of the written record, and denies it otherwise.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m veloxrm.Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		value, ok := m.Field(field)
		if !ok {
			return Skip
		}
		if fmt.Sprint(value) == tenant {
			return Allow
		}
		return Denyf("privacy: tenant mismatch")
	})
}

// ReadOnlyFields returns a rule denying updates that write any of fields.
func ReadOnlyFields(fields ...string) MutationRule {
	return MutationRuleFunc(func(_ context.Context, m veloxrm.Mutation) error {
		if m.Op() != veloxrm.OpUpdate {
			return Skip
		}
		for _, f := range m.Fields() {
			if slices.Contains(fields, f) {
				return Denyf("privacy: field %s.%s is read-only", m.Table(), f)
			}
		}
		return Skip
	})
}
