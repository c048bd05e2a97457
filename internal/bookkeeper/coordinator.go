package bookkeeper

import (
	"context"
	"strconv"

	"bookkeeper.org/internal/audit"
	"bookkeeper.org/internal/identity"
)

// Service is the coordinator contract the surrounding resource layer consumes.
// Every call receives the caller identity explicitly; the core holds no
// ambient request state.
type Service interface {
	ListQuotasForCaller(ctx context.Context, caller identity.Caller, filter QuotaFilter, page Page) ([]QuotaUsage, error)
	GetQuotaForCaller(ctx context.Context, caller identity.Caller, quotaID string) (QuotaUsage, error)
	CreateQuota(ctx context.Context, caller identity.Caller, q Quota) (Quota, error)
	UpdateQuota(ctx context.Context, caller identity.Caller, q Quota) (Quota, error)
	DeleteQuota(ctx context.Context, caller identity.Caller, quotaID string) error
	RecordUsage(ctx context.Context, caller identity.Caller, quotaID, instanceID string, quantity float64, status string) (Usage, LimitStatus, error)
	RetireUsage(ctx context.Context, caller identity.Caller, usageID, status string) (Usage, error)
	Evaluate(ctx context.Context, caller identity.Caller, quotaID string) (LimitStatus, error)
}

// Coordinator orchestrates subject resolution, visibility, lifecycle, and the
// usage ledger. Transient collaborator failures are retried once; validation
// and authorization failures are surfaced immediately and never retried.
type Coordinator struct {
	visibility *VisibilityEngine
	lifecycle  *LifecycleManager
	ledger     *UsageLedger
}

var _ Service = (*Coordinator)(nil)

// NewCoordinator wires the coordinator to the core components.
func NewCoordinator(visibility *VisibilityEngine, lifecycle *LifecycleManager, ledger *UsageLedger) *Coordinator {
	return &Coordinator{visibility: visibility, lifecycle: lifecycle, ledger: ledger}
}

// retry runs fn, repeating once when the failure is transient and the context
// still lives. Typed rejections pass through untouched.
func retry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil && isTransient(err) && ctx.Err() == nil {
		v, err = fn(ctx)
	}
	return v, err
}

// ListQuotasForCaller lists visible quotas joined with their live consumption.
// The join is best effort: a quota whose ledger read fails is returned with a
// nil TotalUsage marker instead of aborting the listing.
func (c *Coordinator) ListQuotasForCaller(ctx context.Context, caller identity.Caller, filter QuotaFilter, page Page) ([]QuotaUsage, error) {
	quotas, err := retry(ctx, func(ctx context.Context) ([]Quota, error) {
		return c.visibility.ListVisible(ctx, caller, filter, page)
	})
	if err != nil {
		return nil, err
	}
	out := make([]QuotaUsage, 0, len(quotas))
	for _, q := range quotas {
		out = append(out, c.joinUsage(ctx, q))
	}
	return out, nil
}

// GetQuotaForCaller fetches one visible quota with its live consumption.
func (c *Coordinator) GetQuotaForCaller(ctx context.Context, caller identity.Caller, quotaID string) (QuotaUsage, error) {
	q, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.visibility.GetVisible(ctx, caller, quotaID)
	})
	if err != nil {
		return QuotaUsage{}, err
	}
	return c.joinUsage(ctx, q), nil
}

func (c *Coordinator) joinUsage(ctx context.Context, q Quota) QuotaUsage {
	qu := QuotaUsage{Quota: q}
	total, err := c.ledger.CurrentConsumption(ctx, q.ID)
	if err != nil {
		// Degraded but successful: usage unknown for this item only.
		return qu
	}
	qu.TotalUsage = &total
	return qu
}

// CreateQuota creates a quota on behalf of an administrator caller.
func (c *Coordinator) CreateQuota(ctx context.Context, caller identity.Caller, q Quota) (Quota, error) {
	created, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.lifecycle.Create(ctx, caller, q)
	})
	if err != nil {
		return Quota{}, err
	}
	_ = audit.LogEvent(ctx, "quota.create", map[string]any{
		"caller":   caller.Subject,
		"quota_id": created.ID,
		"name":     created.Name,
		"unit":     created.Unit,
	})
	return created, nil
}

// UpdateQuota updates a quota on behalf of an administrator caller.
func (c *Coordinator) UpdateQuota(ctx context.Context, caller identity.Caller, q Quota) (Quota, error) {
	updated, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.lifecycle.Update(ctx, caller, q)
	})
	if err != nil {
		return Quota{}, err
	}
	_ = audit.LogEvent(ctx, "quota.update", map[string]any{
		"caller":   caller.Subject,
		"quota_id": updated.ID,
	})
	return updated, nil
}

// DeleteQuota deletes a quota on behalf of an administrator caller.
func (c *Coordinator) DeleteQuota(ctx context.Context, caller identity.Caller, quotaID string) error {
	_, err := retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.lifecycle.Delete(ctx, caller, quotaID)
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "quota.delete", map[string]any{
		"caller":   caller.Subject,
		"quota_id": quotaID,
	})
	return nil
}

// RecordUsage records consumption against a quota the caller can see and
// reports the resulting limit status. Unauthorized quota ids read as not
// found, same as single-record gets.
func (c *Coordinator) RecordUsage(ctx context.Context, caller identity.Caller, quotaID, instanceID string, quantity float64, status string) (Usage, LimitStatus, error) {
	if _, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.visibility.GetVisible(ctx, caller, quotaID)
	}); err != nil {
		return Usage{}, LimitStatus{}, err
	}
	u, err := retry(ctx, func(ctx context.Context) (Usage, error) {
		return c.ledger.RecordUsage(ctx, quotaID, instanceID, quantity, status)
	})
	if err != nil {
		return Usage{}, LimitStatus{}, err
	}
	limit, err := retry(ctx, func(ctx context.Context) (LimitStatus, error) {
		return c.ledger.Evaluate(ctx, quotaID)
	})
	if err != nil {
		return Usage{}, LimitStatus{}, err
	}
	_ = audit.LogEvent(ctx, "usage.record", map[string]any{
		"caller":      caller.Subject,
		"quota_id":    quotaID,
		"instance_id": instanceID,
		"quantity":    strconv.FormatFloat(quantity, 'f', -1, 64),
		"status":      status,
	})
	return u, limit, nil
}

// RetireUsage moves a usage record to a terminal status. The record's quota
// must be visible to the caller; an invisible record reads as not found.
func (c *Coordinator) RetireUsage(ctx context.Context, caller identity.Caller, usageID, status string) (Usage, error) {
	u, err := retry(ctx, func(ctx context.Context) (Usage, error) {
		return c.ledger.Lookup(ctx, usageID)
	})
	if err != nil {
		return Usage{}, err
	}
	if _, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.visibility.GetVisible(ctx, caller, u.QuotaID)
	}); err != nil {
		return Usage{}, err
	}
	retired, err := retry(ctx, func(ctx context.Context) (Usage, error) {
		return c.ledger.RetireUsage(ctx, usageID, status)
	})
	if err != nil {
		return Usage{}, err
	}
	_ = audit.LogEvent(ctx, "usage.retire", map[string]any{
		"caller":   caller.Subject,
		"usage_id": usageID,
		"status":   status,
	})
	return retired, nil
}

// Evaluate reports the limit status of a quota the caller can see.
func (c *Coordinator) Evaluate(ctx context.Context, caller identity.Caller, quotaID string) (LimitStatus, error) {
	if _, err := retry(ctx, func(ctx context.Context) (Quota, error) {
		return c.visibility.GetVisible(ctx, caller, quotaID)
	}); err != nil {
		return LimitStatus{}, err
	}
	return retry(ctx, func(ctx context.Context) (LimitStatus, error) {
		return c.ledger.Evaluate(ctx, quotaID)
	})
}
