package bookkeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookkeeper.org/internal/identity"
)

// LifecycleManager validates and applies create/update/delete operations on
// quota records. Every operation requires administrator privilege; the check
// happens before any store call.
type LifecycleManager struct {
	quotas    QuotaStore
	customers CustomerStore
	resolver  identity.Resolver
}

// NewLifecycleManager wires the manager to its collaborators.
func NewLifecycleManager(quotas QuotaStore, customers CustomerStore, resolver identity.Resolver) *LifecycleManager {
	return &LifecycleManager{quotas: quotas, customers: customers, resolver: resolver}
}

func (m *LifecycleManager) requireAdmin(ctx context.Context, caller identity.Caller) error {
	admin, err := m.resolver.IsAdmin(ctx, caller.Subject)
	if err != nil {
		return fmt.Errorf("%w: admin lookup: %v", ErrTransient, err)
	}
	if !admin {
		return fmt.Errorf("%w: %s lacks administrator privilege", ErrForbidden, caller.Subject)
	}
	return nil
}

// Create validates and persists a new quota. The store assigns the id; the
// returned record includes all server-computed fields.
func (m *LifecycleManager) Create(ctx context.Context, caller identity.Caller, q Quota) (Quota, error) {
	if err := m.requireAdmin(ctx, caller); err != nil {
		return Quota{}, err
	}
	if err := q.Validate(); err != nil {
		return Quota{}, err
	}
	if err := m.checkCustomerExists(ctx, q.CustomerID); err != nil {
		return Quota{}, err
	}
	q.ID = ""
	return m.quotas.InsertQuota(ctx, q)
}

// Update re-validates and replaces an existing quota. The target must exist,
// and the owning customer may not be changed to a nonexistent one.
func (m *LifecycleManager) Update(ctx context.Context, caller identity.Caller, q Quota) (Quota, error) {
	if err := m.requireAdmin(ctx, caller); err != nil {
		return Quota{}, err
	}
	if strings.TrimSpace(q.ID) == "" {
		return Quota{}, fmt.Errorf("%w: quota id is required", ErrInvalidQuota)
	}
	if err := q.Validate(); err != nil {
		return Quota{}, err
	}
	if _, err := m.quotas.GetQuota(ctx, q.ID); err != nil {
		return Quota{}, err
	}
	if err := m.checkCustomerExists(ctx, q.CustomerID); err != nil {
		return Quota{}, err
	}
	if err := m.quotas.UpdateQuota(ctx, q); err != nil {
		return Quota{}, err
	}
	return m.quotas.GetQuota(ctx, q.ID)
}

// Delete removes a quota by id. An absent id is an explicit error, not a
// silent no-op. Existing usage records are left orphaned for audit retention
// rather than cascade-deleted.
func (m *LifecycleManager) Delete(ctx context.Context, caller identity.Caller, id string) error {
	if err := m.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: quota id is required", ErrInvalidQuota)
	}
	return m.quotas.DeleteQuota(ctx, id)
}

func (m *LifecycleManager) checkCustomerExists(ctx context.Context, customerID string) error {
	if customerID == "" {
		return nil
	}
	if _, err := m.customers.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: customer %s does not exist", ErrInvalidQuota, customerID)
		}
		return err
	}
	return nil
}
