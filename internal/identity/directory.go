package identity

import (
	"context"
	"strings"
)

// MembershipStore reports the group subjects a subject belongs to. The
// PostgreSQL implementation lives in internal/store/pg; StaticMemberships
// serves configuration-driven deployments and tests.
type MembershipStore interface {
	GroupsFor(ctx context.Context, subject string) ([]string, error)
}

// StaticMemberships is a fixed subject -> group subjects mapping.
type StaticMemberships map[string][]string

func (m StaticMemberships) GroupsFor(_ context.Context, subject string) ([]string, error) {
	return m[subject], nil
}

// Directory implements Resolver from a configured administrator list and a
// membership store. Admin status comes from configuration only; associations
// come from the store on every call.
type Directory struct {
	admins      map[string]struct{}
	memberships MembershipStore
}

var _ Resolver = (*Directory)(nil)

// NewDirectory constructs a Directory. A nil memberships store means no
// subject has associations beyond itself.
func NewDirectory(adminSubjects []string, memberships MembershipStore) *Directory {
	admins := make(map[string]struct{}, len(adminSubjects))
	for _, s := range adminSubjects {
		s = strings.TrimSpace(s)
		if s != "" {
			admins[s] = struct{}{}
		}
	}
	if memberships == nil {
		memberships = StaticMemberships(nil)
	}
	return &Directory{admins: admins, memberships: memberships}
}

func (d *Directory) IsAdmin(_ context.Context, subject string) (bool, error) {
	_, ok := d.admins[strings.TrimSpace(subject)]
	return ok, nil
}

func (d *Directory) AssociatedSubjects(ctx context.Context, caller Caller, candidates []string) ([]string, error) {
	groups, err := d.memberships.GroupsFor(ctx, strings.TrimSpace(caller.Subject))
	if err != nil {
		return nil, err
	}
	known := NewSubjectSet(caller.Subject)
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" {
			known[g] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return known.Subjects(), nil
	}
	return known.Intersect(candidates), nil
}
