package bookkeeper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookkeeper.org/internal/ids"
)

// InMemory implements the three store contracts with in-process concurrency
// safety. It backs tests and DSN-less development runs; durable deployments
// use internal/store/pg.
type InMemory struct {
	mu        sync.RWMutex
	quotas    map[string]Quota
	usages    map[string]Usage
	customers map[string]Customer
}

var (
	_ QuotaStore    = (*InMemory)(nil)
	_ UsageStore    = (*InMemory)(nil)
	_ CustomerStore = (*InMemory)(nil)
)

// NewInMemory creates empty in-memory stores.
func NewInMemory() *InMemory {
	return &InMemory{
		quotas:    make(map[string]Quota),
		usages:    make(map[string]Usage),
		customers: make(map[string]Customer),
	}
}

// --- QuotaStore ---

func (s *InMemory) ListQuotas(ctx context.Context) ([]Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectQuotas(func(Quota) bool { return true }), nil
}

func (s *InMemory) GetQuota(ctx context.Context, id string) (Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotas[id]
	if !ok {
		return Quota{}, ErrNotFound
	}
	return q, nil
}

func (s *InMemory) InsertQuota(ctx context.Context, q Quota) (Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		q.ID = ids.New()
	}
	if _, exists := s.quotas[q.ID]; exists {
		return Quota{}, fmt.Errorf("%w: quota %s already exists", ErrConflict, q.ID)
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	s.quotas[q.ID] = q
	return q, nil
}

func (s *InMemory) UpdateQuota(ctx context.Context, q Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.quotas[q.ID]
	if !ok {
		return ErrNotFound
	}
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = time.Now().UTC()
	s.quotas[q.ID] = q
	return nil
}

func (s *InMemory) DeleteQuota(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quotas[id]; !ok {
		return ErrNotFound
	}
	// Usage rows referencing the quota stay behind for audit retention.
	delete(s.quotas, id)
	return nil
}

func (s *InMemory) FindQuotasBySubjects(ctx context.Context, subjects []string) ([]Quota, error) {
	want := make(map[string]struct{}, len(subjects))
	for _, sub := range subjects {
		want[sub] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectQuotas(func(q Quota) bool {
		_, ok := want[q.Subject]
		return q.Subject != "" && ok
	}), nil
}

func (s *InMemory) FindQuotasByCustomer(ctx context.Context, customerID string) ([]Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectQuotas(func(q Quota) bool { return q.CustomerID == customerID && customerID != "" }), nil
}

func (s *InMemory) ListUnassignedQuotas(ctx context.Context) ([]Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectQuotas(func(q Quota) bool { return q.Unassigned() }), nil
}

// collectQuotas must be called with the lock held.
func (s *InMemory) collectQuotas(match func(Quota) bool) []Quota {
	var out []Quota
	for _, q := range s.quotas {
		if match(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- UsageStore ---

func (s *InMemory) InsertUsage(ctx context.Context, u Usage) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, exists := s.usages[u.ID]; exists {
		return Usage{}, fmt.Errorf("%w: usage %s already exists", ErrConflict, u.ID)
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.usages[u.ID] = u
	return u, nil
}

func (s *InMemory) GetUsage(ctx context.Context, id string) (Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usages[id]
	if !ok {
		return Usage{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) FindUsagesByQuota(ctx context.Context, quotaID string, statuses []string) ([]Usage, error) {
	want := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Usage
	for _, u := range s.usages {
		if u.QuotaID != quotaID {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[u.Status]; !ok {
				continue
			}
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) FindUsageByInstance(ctx context.Context, quotaID, instanceID string) (Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.usages {
		if u.QuotaID == quotaID && u.InstanceID == instanceID {
			return u, nil
		}
	}
	return Usage{}, ErrNotFound
}

func (s *InMemory) UpdateUsage(ctx context.Context, u Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.usages[u.ID]
	if !ok {
		return ErrNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.usages[u.ID] = u
	return nil
}

func (s *InMemory) DeleteUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usages[id]; !ok {
		return ErrNotFound
	}
	delete(s.usages, id)
	return nil
}

// --- CustomerStore ---

func (s *InMemory) InsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	if _, exists := s.customers[c.ID]; exists {
		return Customer{}, fmt.Errorf("%w: customer %s already exists", ErrConflict, c.ID)
	}
	for _, other := range s.customers {
		if other.Subject == c.Subject {
			return Customer{}, fmt.Errorf("%w: subject %s already registered", ErrConflict, c.Subject)
		}
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.customers[c.ID] = c
	return c, nil
}

func (s *InMemory) GetCustomer(ctx context.Context, id string) (CustomerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return CustomerAccount{}, ErrNotFound
	}
	return CustomerAccount{
		Customer: c,
		Quotas:   s.collectQuotas(func(q Quota) bool { return q.CustomerID == c.ID }),
	}, nil
}

func (s *InMemory) GetCustomerBySubject(ctx context.Context, subject string) (CustomerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.Subject == subject {
			return CustomerAccount{
				Customer: c,
				Quotas:   s.collectQuotas(func(q Quota) bool { return q.CustomerID == c.ID }),
			}, nil
		}
	}
	return CustomerAccount{}, ErrNotFound
}

func (s *InMemory) ListCustomers(ctx context.Context) ([]CustomerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CustomerAccount
	for _, c := range s.customers {
		out = append(out, CustomerAccount{
			Customer: c,
			Quotas:   s.collectQuotas(func(q Quota) bool { return q.CustomerID == c.ID }),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) DeleteCustomer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return ErrNotFound
	}
	for _, q := range s.quotas {
		if q.CustomerID == id {
			return fmt.Errorf("%w: customer %s still owns quota %s", ErrConflict, id, q.ID)
		}
	}
	delete(s.customers, id)
	return nil
}
