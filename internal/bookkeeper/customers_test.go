package bookkeeper

import (
	"context"
	"errors"
	"testing"

	"bookkeeper.org/internal/identity"
)

func TestCustomerRegisterAndAggregate(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()
	admin := identity.Caller{Subject: adminSubject}

	c, err := reg.Register(ctx, admin, Customer{Subject: "S1", Email: "jane@example.org", Currency: "USD"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected server-assigned id")
	}

	if _, err := store.InsertQuota(ctx, Quota{Name: "storage", SoftLimit: 1, HardLimit: 2, Unit: "gigabyte", CustomerID: c.ID}); err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	acct, err := reg.Get(ctx, admin, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(acct.Quotas) != 1 || acct.Quotas[0].CustomerID != c.ID {
		t.Fatalf("aggregate missing owned quota: %+v", acct.Quotas)
	}
}

func TestCustomerRegisterRequiresAdminAndSubject(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()

	if _, err := reg.Register(ctx, identity.Caller{Subject: "S1"}, Customer{Subject: "S9"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := reg.Register(ctx, identity.Caller{Subject: adminSubject}, Customer{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCustomerSubjectUniqueness(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()
	admin := identity.Caller{Subject: adminSubject}

	if _, err := reg.Register(ctx, admin, Customer{Subject: "S1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Register(ctx, admin, Customer{Subject: "S1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate subject, got %v", err)
	}
}

func TestCustomerGetHidesForeignRecord(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()
	admin := identity.Caller{Subject: adminSubject}

	mine, err := reg.Register(ctx, admin, Customer{Subject: "S1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	other, err := reg.Register(ctx, admin, Customer{Subject: "S2"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := reg.Get(ctx, identity.Caller{Subject: "S1"}, mine.ID); err != nil {
		t.Fatalf("self read should succeed: %v", err)
	}
	if _, err := reg.Get(ctx, identity.Caller{Subject: "S1"}, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign customer, got %v", err)
	}
}

func TestCustomerListIsAdminOnly(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()

	if _, err := reg.List(ctx, identity.Caller{Subject: "S1"}, Page{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCustomerRemoveBlockedWhileQuotasRemain(t *testing.T) {
	store := NewInMemory()
	reg := NewCustomerRegistry(store, newTestResolver())
	ctx := context.Background()
	admin := identity.Caller{Subject: adminSubject}

	c, err := reg.Register(ctx, admin, Customer{Subject: "S1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	q, err := store.InsertQuota(ctx, Quota{Name: "storage", SoftLimit: 1, HardLimit: 2, Unit: "gigabyte", CustomerID: c.ID})
	if err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	if err := reg.Remove(ctx, admin, c.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while quota remains, got %v", err)
	}
	if err := store.DeleteQuota(ctx, q.ID); err != nil {
		t.Fatalf("delete quota: %v", err)
	}
	if err := reg.Remove(ctx, admin, c.ID); err != nil {
		t.Fatalf("Remove after quota gone: %v", err)
	}
}
