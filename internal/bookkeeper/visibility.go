package bookkeeper

import (
	"context"
	"errors"
	"fmt"

	"bookkeeper.org/internal/identity"
)

// VisibilityEngine decides which quotas a caller may see. Policy, in priority
// order:
//
//  1. Administrators see every quota matching the filter.
//  2. A non-admin subject filter is intersected with the caller's resolved
//     subject set; subjects outside the set are silently dropped, never
//     queried.
//  3. Customer-filtered listings are admin only.
//  4. With no filter, non-admins get the unassigned (product default) quotas.
//  5. Single-record access outside the caller's subject set reads as not
//     found, indistinguishable from an absent record.
type VisibilityEngine struct {
	quotas   QuotaStore
	resolver identity.Resolver
}

// NewVisibilityEngine wires the engine to its collaborators.
func NewVisibilityEngine(quotas QuotaStore, resolver identity.Resolver) *VisibilityEngine {
	return &VisibilityEngine{quotas: quotas, resolver: resolver}
}

func (e *VisibilityEngine) isAdmin(ctx context.Context, caller identity.Caller) (bool, error) {
	admin, err := e.resolver.IsAdmin(ctx, caller.Subject)
	if err != nil {
		return false, fmt.Errorf("%w: admin lookup: %v", ErrTransient, err)
	}
	return admin, nil
}

func (e *VisibilityEngine) subjectSet(ctx context.Context, caller identity.Caller) (identity.SubjectSet, error) {
	set, err := identity.Resolve(ctx, e.resolver, caller)
	if err != nil {
		// Fail closed: an unreachable directory must not read as "no
		// restriction".
		return nil, fmt.Errorf("%w: subject resolution: %v", ErrTransient, err)
	}
	return set, nil
}

// ListVisible returns the quotas the caller may list under the given filter,
// windowed by page. Pagination applies after the authorization narrowing.
func (e *VisibilityEngine) ListVisible(ctx context.Context, caller identity.Caller, filter QuotaFilter, page Page) ([]Quota, error) {
	admin, err := e.isAdmin(ctx, caller)
	if err != nil {
		return nil, err
	}

	var quotas []Quota
	switch {
	case len(filter.Subjects) > 0:
		subjects := filter.Subjects
		if !admin {
			set, err := e.subjectSet(ctx, caller)
			if err != nil {
				return nil, err
			}
			subjects = set.Intersect(subjects)
			if len(subjects) == 0 {
				return nil, nil
			}
		}
		quotas, err = e.quotas.FindQuotasBySubjects(ctx, subjects)
	case filter.CustomerID != "":
		if !admin {
			return nil, fmt.Errorf("%w: customer-filtered listing requires administrator privilege", ErrForbidden)
		}
		quotas, err = e.quotas.FindQuotasByCustomer(ctx, filter.CustomerID)
	case admin:
		quotas, err = e.quotas.ListQuotas(ctx)
	default:
		quotas, err = e.quotas.ListUnassignedQuotas(ctx)
	}
	if err != nil {
		return nil, err
	}
	return pageSlice(quotas, page), nil
}

// Visible reports whether the caller may access the single quota.
func (e *VisibilityEngine) Visible(ctx context.Context, caller identity.Caller, q Quota) (bool, error) {
	admin, err := e.isAdmin(ctx, caller)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	if q.Subject == "" {
		// Unassigned and customer-scoped quotas carry no subject binding a
		// non-admin could satisfy; defaults are listable but not addressable.
		return q.Unassigned(), nil
	}
	set, err := e.subjectSet(ctx, caller)
	if err != nil {
		return false, err
	}
	return set.Contains(q.Subject), nil
}

// GetVisible fetches a quota by id, reading unauthorized access as absence.
func (e *VisibilityEngine) GetVisible(ctx context.Context, caller identity.Caller, id string) (Quota, error) {
	q, err := e.quotas.GetQuota(ctx, id)
	if err != nil {
		return Quota{}, err
	}
	ok, err := e.Visible(ctx, caller, q)
	if err != nil {
		return Quota{}, err
	}
	if !ok {
		// Anti-leakage: never Forbidden for single-record reads.
		return Quota{}, ErrNotFound
	}
	return q, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
