package bookkeeper

import (
	"context"
	"fmt"
	"strings"

	"bookkeeper.org/internal/identity"
)

// CustomerRegistry manages customer records and their quota aggregates.
// Registration and deletion are provisioning operations reserved for
// administrators; a customer can always read its own record.
type CustomerRegistry struct {
	customers CustomerStore
	resolver  identity.Resolver
}

// NewCustomerRegistry wires the registry to its collaborators.
func NewCustomerRegistry(customers CustomerStore, resolver identity.Resolver) *CustomerRegistry {
	return &CustomerRegistry{customers: customers, resolver: resolver}
}

func (r *CustomerRegistry) requireAdmin(ctx context.Context, caller identity.Caller) error {
	admin, err := r.resolver.IsAdmin(ctx, caller.Subject)
	if err != nil {
		return fmt.Errorf("%w: admin lookup: %v", ErrTransient, err)
	}
	if !admin {
		return fmt.Errorf("%w: %s lacks administrator privilege", ErrForbidden, caller.Subject)
	}
	return nil
}

// Register creates a customer. The subject is immutable once set and must be
// unique across customers.
func (r *CustomerRegistry) Register(ctx context.Context, caller identity.Caller, c Customer) (Customer, error) {
	if err := r.requireAdmin(ctx, caller); err != nil {
		return Customer{}, err
	}
	c.Subject = strings.TrimSpace(c.Subject)
	if c.Subject == "" {
		return Customer{}, fmt.Errorf("%w: customer subject is required", ErrInvalidInput)
	}
	c.ID = ""
	return r.customers.InsertCustomer(ctx, c)
}

// Get returns a customer with its quotas. Non-admin callers may only read the
// record bound to a subject in their resolved subject set; anything else
// reads as not found.
func (r *CustomerRegistry) Get(ctx context.Context, caller identity.Caller, id string) (CustomerAccount, error) {
	acct, err := r.customers.GetCustomer(ctx, id)
	if err != nil {
		return CustomerAccount{}, err
	}
	admin, err := r.resolver.IsAdmin(ctx, caller.Subject)
	if err != nil {
		return CustomerAccount{}, fmt.Errorf("%w: admin lookup: %v", ErrTransient, err)
	}
	if admin {
		return acct, nil
	}
	set, err := identity.Resolve(ctx, r.resolver, caller)
	if err != nil {
		return CustomerAccount{}, fmt.Errorf("%w: subject resolution: %v", ErrTransient, err)
	}
	if !set.Contains(acct.Subject) {
		return CustomerAccount{}, ErrNotFound
	}
	return acct, nil
}

// List returns all customers with their quotas. Administrator only.
func (r *CustomerRegistry) List(ctx context.Context, caller identity.Caller, page Page) ([]CustomerAccount, error) {
	if err := r.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	accounts, err := r.customers.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return pageSlice(accounts, page), nil
}

// Remove deletes a customer. Deletion is refused while any quota still
// references the customer (referential invariant); the store surfaces that
// as ErrConflict.
func (r *CustomerRegistry) Remove(ctx context.Context, caller identity.Caller, id string) error {
	if err := r.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	return r.customers.DeleteCustomer(ctx, id)
}
