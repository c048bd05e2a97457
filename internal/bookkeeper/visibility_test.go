package bookkeeper

import (
	"context"
	"errors"
	"testing"

	"bookkeeper.org/internal/identity"
)

const adminSubject = "CN=urn:node:CN,DC=dataone,DC=org"

func newTestResolver() identity.Resolver {
	return identity.NewDirectory([]string{adminSubject}, identity.StaticMemberships{
		"S1": {"G1"},
	})
}

func seedQuotas(t *testing.T, store *InMemory) map[string]Quota {
	t.Helper()
	ctx := context.Background()
	seeded := make(map[string]Quota)
	for name, q := range map[string]Quota{
		"s1":        {Name: "storage", SoftLimit: 100, HardLimit: 200, Unit: "gigabyte", Subject: "S1"},
		"g1":        {Name: "portal", SoftLimit: 1, HardLimit: 3, Unit: "portal", Subject: "G1"},
		"s2":        {Name: "storage", SoftLimit: 50, HardLimit: 80, Unit: "gigabyte", Subject: "S2"},
		"default":   {Name: "storage", SoftLimit: 5, HardLimit: 10, Unit: "gigabyte"},
		"cust":      {Name: "storage", SoftLimit: 500, HardLimit: 900, Unit: "gigabyte", CustomerID: "cust-1"},
		"default-2": {Name: "portal", SoftLimit: 1, HardLimit: 1, Unit: "portal"},
	} {
		inserted, err := store.InsertQuota(ctx, q)
		if err != nil {
			t.Fatalf("seed quota %s: %v", name, err)
		}
		seeded[name] = inserted
	}
	return seeded
}

func TestListVisibleAdminSeesEverything(t *testing.T) {
	store := NewInMemory()
	seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	got, err := engine.ListVisible(context.Background(), identity.Caller{Subject: adminSubject}, QuotaFilter{}, Page{})
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected all 6 quotas, got %d", len(got))
	}
}

func TestListVisibleIntersectsSubjectFilter(t *testing.T) {
	store := NewInMemory()
	seeded := seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())
	caller := identity.Caller{Subject: "S1"}

	// S2 is outside the caller's resolved set and must be dropped, even
	// though it was explicitly requested.
	got, err := engine.ListVisible(context.Background(), caller, QuotaFilter{Subjects: []string{"S1", "S2", "G1"}}, Page{})
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 quotas, got %d", len(got))
	}
	for _, q := range got {
		if q.ID == seeded["s2"].ID {
			t.Fatalf("quota bound to S2 leaked into result")
		}
		if q.Subject != "S1" && q.Subject != "G1" {
			t.Fatalf("unexpected subject %q in result", q.Subject)
		}
	}
}

func TestListVisibleForeignSubjectOnlyYieldsNothing(t *testing.T) {
	store := NewInMemory()
	seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	// Non-admin S1 with no associations beyond G1 asks for S2 only.
	got, err := engine.ListVisible(context.Background(), identity.Caller{Subject: "S1"}, QuotaFilter{Subjects: []string{"S2"}}, Page{})
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d quotas", len(got))
	}
}

func TestListVisibleCustomerFilterIsAdminOnly(t *testing.T) {
	store := NewInMemory()
	seeded := seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	_, err := engine.ListVisible(context.Background(), identity.Caller{Subject: "S1"}, QuotaFilter{CustomerID: "cust-1"}, Page{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	got, err := engine.ListVisible(context.Background(), identity.Caller{Subject: adminSubject}, QuotaFilter{CustomerID: "cust-1"}, Page{})
	if err != nil {
		t.Fatalf("admin customer filter: %v", err)
	}
	if len(got) != 1 || got[0].ID != seeded["cust"].ID {
		t.Fatalf("unexpected customer-filtered result: %+v", got)
	}
}

func TestListVisibleDefaultsToUnassignedForNonAdmin(t *testing.T) {
	store := NewInMemory()
	seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	got, err := engine.ListVisible(context.Background(), identity.Caller{Subject: "S1"}, QuotaFilter{}, Page{})
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the 2 unassigned quotas, got %d", len(got))
	}
	for _, q := range got {
		if !q.Unassigned() {
			t.Fatalf("non-default quota %s in default listing", q.ID)
		}
	}
}

func TestListVisiblePaginationDoesNotWidenAccess(t *testing.T) {
	store := NewInMemory()
	seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	got, err := engine.ListVisible(context.Background(), identity.Caller{Subject: "S1"}, QuotaFilter{}, Page{Start: 1, Count: 10})
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 quota in window, got %d", len(got))
	}
	if !got[0].Unassigned() {
		t.Fatalf("pagination leaked a non-default quota")
	}
}

func TestGetVisibleAgreesWithListing(t *testing.T) {
	store := NewInMemory()
	seeded := seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())
	ctx := context.Background()
	caller := identity.Caller{Subject: "S1"}

	for name, q := range seeded {
		if q.Subject == "" {
			continue
		}
		_, getErr := engine.GetVisible(ctx, caller, q.ID)
		listed, err := engine.ListVisible(ctx, caller, QuotaFilter{Subjects: []string{q.Subject}}, Page{})
		if err != nil {
			t.Fatalf("ListVisible(%s): %v", name, err)
		}
		inList := false
		for _, l := range listed {
			if l.ID == q.ID {
				inList = true
			}
		}
		if (getErr == nil) != inList {
			t.Fatalf("get/list disagree for %s: getErr=%v inList=%v", name, getErr, inList)
		}
	}
}

func TestGetVisibleHidesForeignQuotaAsNotFound(t *testing.T) {
	store := NewInMemory()
	seeded := seedQuotas(t, store)
	engine := NewVisibilityEngine(store, newTestResolver())

	_, err := engine.GetVisible(context.Background(), identity.Caller{Subject: "S1"}, seeded["s2"].ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign quota, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatalf("forbidden leaked through single-record access")
	}
}

type unreachableResolver struct{}

func (unreachableResolver) IsAdmin(context.Context, string) (bool, error) {
	return false, errors.New("directory timeout")
}

func (unreachableResolver) AssociatedSubjects(context.Context, identity.Caller, []string) ([]string, error) {
	return nil, errors.New("directory timeout")
}

func TestVisibilityFailsClosedOnResolverOutage(t *testing.T) {
	store := NewInMemory()
	seedQuotas(t, store)
	engine := NewVisibilityEngine(store, unreachableResolver{})

	_, err := engine.ListVisible(context.Background(), identity.Caller{Subject: "S1"}, QuotaFilter{}, Page{})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}
