package bookkeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookkeeper.org/internal/obs"
)

// UsageLedger records consumption events against quotas and evaluates
// aggregate consumption against limits. Recording never touches a cached
// total on the quota: consumption is always the live sum of active rows at
// evaluation time, so the ledger cannot drift from its own records.
type UsageLedger struct {
	usages UsageStore
	quotas QuotaStore
}

// NewUsageLedger wires the ledger to its stores.
func NewUsageLedger(usages UsageStore, quotas QuotaStore) *UsageLedger {
	return &UsageLedger{usages: usages, quotas: quotas}
}

// RecordUsage writes one consumption record. A second record for the same
// (quota, instance) pair overwrites quantity and status, last write wins;
// idempotent instance identification is the caller's concern.
func (l *UsageLedger) RecordUsage(ctx context.Context, quotaID, instanceID string, quantity float64, status string) (Usage, error) {
	u := Usage{
		QuotaID:    strings.TrimSpace(quotaID),
		InstanceID: strings.TrimSpace(instanceID),
		Quantity:   quantity,
		Status:     status,
	}
	if err := u.Validate(); err != nil {
		return Usage{}, err
	}
	if _, err := l.quotas.GetQuota(ctx, u.QuotaID); err != nil {
		return Usage{}, err
	}

	existing, err := l.usages.FindUsageByInstance(ctx, u.QuotaID, u.InstanceID)
	switch {
	case err == nil:
		existing.Quantity = u.Quantity
		existing.Status = u.Status
		if err := l.usages.UpdateUsage(ctx, existing); err != nil {
			return Usage{}, err
		}
		obs.ObserveUsageRecord()
		return l.usages.GetUsage(ctx, existing.ID)
	case errors.Is(err, ErrNotFound):
		inserted, err := l.usages.InsertUsage(ctx, u)
		if err != nil {
			return Usage{}, err
		}
		obs.ObserveUsageRecord()
		return inserted, nil
	default:
		return Usage{}, err
	}
}

// RetireUsage marks a usage record with a terminal status instead of deleting
// it, preserving accounting history.
func (l *UsageLedger) RetireUsage(ctx context.Context, usageID, status string) (Usage, error) {
	switch status {
	case UsageStatusInactive, UsageStatusRemoved:
	default:
		return Usage{}, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidInput, status)
	}
	u, err := l.usages.GetUsage(ctx, usageID)
	if err != nil {
		return Usage{}, err
	}
	u.Status = status
	if err := l.usages.UpdateUsage(ctx, u); err != nil {
		return Usage{}, err
	}
	return l.usages.GetUsage(ctx, u.ID)
}

// Lookup fetches one usage record by id.
func (l *UsageLedger) Lookup(ctx context.Context, usageID string) (Usage, error) {
	return l.usages.GetUsage(ctx, usageID)
}

// CurrentConsumption sums quantity over the quota's active usage rows. The
// read is authoritative, not a cache.
func (l *UsageLedger) CurrentConsumption(ctx context.Context, quotaID string) (float64, error) {
	rows, err := l.usages.FindUsagesByQuota(ctx, quotaID, []string{UsageStatusActive})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, u := range rows {
		total += u.Quantity
	}
	return total, nil
}

// Evaluate is a pure read comparing current consumption against the quota's
// limits. Whether to warn or deny on a breach is the caller's decision.
func (l *UsageLedger) Evaluate(ctx context.Context, quotaID string) (LimitStatus, error) {
	q, err := l.quotas.GetQuota(ctx, quotaID)
	if err != nil {
		return LimitStatus{}, err
	}
	total, err := l.CurrentConsumption(ctx, quotaID)
	if err != nil {
		return LimitStatus{}, err
	}
	status := LimitStatus{
		Consumption:     total,
		SoftLimit:       q.SoftLimit,
		HardLimit:       q.HardLimit,
		WithinSoftLimit: total <= q.SoftLimit,
		WithinHardLimit: total <= q.HardLimit,
	}
	obs.ObserveEvaluation(!status.WithinSoftLimit, !status.WithinHardLimit)
	return status, nil
}
