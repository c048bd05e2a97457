package bookkeeper

import "context"

// QuotaStore is the persistence contract for quotas. Implementations return
// ErrNotFound for absent records and wrap connectivity failures in
// ErrTransient so the coordinator can retry them.
type QuotaStore interface {
	ListQuotas(ctx context.Context) ([]Quota, error)
	GetQuota(ctx context.Context, id string) (Quota, error)
	InsertQuota(ctx context.Context, q Quota) (Quota, error)
	UpdateQuota(ctx context.Context, q Quota) error
	DeleteQuota(ctx context.Context, id string) error
	FindQuotasBySubjects(ctx context.Context, subjects []string) ([]Quota, error)
	FindQuotasByCustomer(ctx context.Context, customerID string) ([]Quota, error)
	ListUnassignedQuotas(ctx context.Context) ([]Quota, error)
}

// UsageStore is the persistence contract for usage records. statuses narrows
// FindUsagesByQuota to the given lifecycle states; empty means all.
type UsageStore interface {
	InsertUsage(ctx context.Context, u Usage) (Usage, error)
	GetUsage(ctx context.Context, id string) (Usage, error)
	FindUsagesByQuota(ctx context.Context, quotaID string, statuses []string) ([]Usage, error)
	FindUsageByInstance(ctx context.Context, quotaID, instanceID string) (Usage, error)
	UpdateUsage(ctx context.Context, u Usage) error
	DeleteUsage(ctx context.Context, id string) error
}

// CustomerStore is the persistence contract for customers. Aggregates carry
// the customer's quotas, joined by the store rather than reduced in the core.
type CustomerStore interface {
	InsertCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id string) (CustomerAccount, error)
	GetCustomerBySubject(ctx context.Context, subject string) (CustomerAccount, error)
	ListCustomers(ctx context.Context) ([]CustomerAccount, error)
	DeleteCustomer(ctx context.Context, id string) error
}
