package bookkeeper

import (
	"fmt"
	"strings"
	"time"
)

// Usage record lifecycle states. Rows are retired by status change rather than
// always hard-deleted, preserving accounting history.
const (
	UsageStatusActive   = "active"
	UsageStatusInactive = "inactive"
	UsageStatusRemoved  = "removed"
)

// Measurement unit tags recognized on quotas.
var recognizedUnits = map[string]struct{}{
	"byte":     {},
	"megabyte": {},
	"gigabyte": {},
	"terabyte": {},
	"portal":   {},
	"count":    {},
}

// UnitRecognized reports whether unit is a known measurement tag.
func UnitRecognized(unit string) bool {
	_, ok := recognizedUnits[strings.TrimSpace(unit)]
	return ok
}

// Quota is a named allotment of a measurable resource with soft and hard
// consumption limits. A quota is customer-scoped (CustomerID set),
// subject-scoped (Subject set), or unassigned, which makes it a product-level
// default.
type Quota struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SoftLimit  float64   `json:"soft_limit"`
	HardLimit  float64   `json:"hard_limit"`
	Unit       string    `json:"unit"`
	CustomerID string    `json:"customer_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Unassigned reports whether the quota is a product-level default bound to no
// customer and no subject.
func (q Quota) Unassigned() bool {
	return q.CustomerID == "" && q.Subject == ""
}

// Validate checks the numeric and unit invariants enforced at create/update.
func (q Quota) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidQuota)
	}
	if !UnitRecognized(q.Unit) {
		return fmt.Errorf("%w: unrecognized unit %q", ErrInvalidQuota, q.Unit)
	}
	if q.SoftLimit < 0 {
		return fmt.Errorf("%w: soft limit must be >= 0", ErrInvalidQuota)
	}
	if q.HardLimit < q.SoftLimit {
		return fmt.Errorf("%w: hard limit must be >= soft limit", ErrInvalidQuota)
	}
	return nil
}

// QuotaUsage is a quota joined with its live consumption total. TotalUsage is
// nil when the usage ledger could not be reached for this quota; the listing
// degrades per item instead of failing whole.
type QuotaUsage struct {
	Quota
	TotalUsage *float64 `json:"total_usage"`
}

// Usage is one accounting record against a quota, attributable to a consuming
// resource instance. A quota's consumption is the sum of Quantity over its
// active rows.
type Usage struct {
	ID         string    `json:"id"`
	QuotaID    string    `json:"quota_id"`
	InstanceID string    `json:"instance_id"`
	Quantity   float64   `json:"quantity"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks required fields and value ranges.
func (u Usage) Validate() error {
	if strings.TrimSpace(u.QuotaID) == "" {
		return fmt.Errorf("%w: quota_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(u.InstanceID) == "" {
		return fmt.Errorf("%w: instance_id is required", ErrInvalidInput)
	}
	if u.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrInvalidInput)
	}
	switch u.Status {
	case UsageStatusActive, UsageStatusInactive, UsageStatusRemoved:
	default:
		return fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, u.Status)
	}
	return nil
}

// LimitStatus is the result of evaluating consumption against a quota's
// limits. The ledger reports; callers decide whether to warn, throttle, or
// deny.
type LimitStatus struct {
	Consumption     float64 `json:"consumption"`
	SoftLimit       float64 `json:"soft_limit"`
	HardLimit       float64 `json:"hard_limit"`
	WithinSoftLimit bool    `json:"within_soft_limit"`
	WithinHardLimit bool    `json:"within_hard_limit"`
}

// Customer is an identity record owning zero or more quotas. The subject is
// immutable once set.
type Customer struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email,omitempty"`
	GivenName  string    `json:"given_name,omitempty"`
	Surname    string    `json:"surname,omitempty"`
	Balance    int64     `json:"balance"`
	Currency   string    `json:"currency,omitempty"`
	Delinquent bool      `json:"delinquent"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CustomerAccount is the customer together with the quotas it owns, loaded as
// one aggregate by the store.
type CustomerAccount struct {
	Customer
	Quotas []Quota `json:"quotas"`
}

// QuotaFilter narrows a quota listing. An empty subject list means "no subject
// filter", never "match nothing".
type QuotaFilter struct {
	Subjects   []string
	CustomerID string
}

// Page bounds a result window. It never affects the authorization decision.
type Page struct {
	Start int
	Count int
}

const (
	defaultPageCount = 1000
	maxPageCount     = 1000
)

// Clamp normalizes pagination bounds.
func (p Page) Clamp() Page {
	if p.Start < 0 {
		p.Start = 0
	}
	if p.Count <= 0 || p.Count > maxPageCount {
		p.Count = defaultPageCount
	}
	return p
}

func pageSlice[T any](items []T, p Page) []T {
	p = p.Clamp()
	if p.Start >= len(items) {
		return nil
	}
	end := p.Start + p.Count
	if end > len(items) {
		end = len(items)
	}
	return items[p.Start:end]
}
