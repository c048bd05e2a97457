package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnavailable indicates the identity backend could not be reached. Callers
// must fail closed on it: an unreachable directory never means "no restriction".
var ErrUnavailable = errors.New("identity: resolver unavailable")

// Caller is the authenticated identity a request acts as. The primary subject
// is an opaque identity claim (a distinguished name, an ORCID-derived
// identifier, a service account name).
type Caller struct {
	Subject string
}

// Resolver answers the two identity questions the quota subsystem needs:
// whether a subject is an administrator, and which of a set of candidate
// subjects a caller is associated with (equivalent identities, group
// memberships). Implementations must never trust client-supplied flags.
type Resolver interface {
	IsAdmin(ctx context.Context, subject string) (bool, error)

	// AssociatedSubjects returns the subjects among candidates that the caller
	// is associated with. An empty candidate list means "all associations of
	// the caller".
	AssociatedSubjects(ctx context.Context, caller Caller, candidates []string) ([]string, error)
}

// SubjectSet is the request-scoped closed set of subjects a caller may act as.
// It is computed per authorization check and never cached across requests,
// because identity associations can change between requests.
type SubjectSet map[string]struct{}

// NewSubjectSet builds a set from the given subjects, dropping blanks.
func NewSubjectSet(subjects ...string) SubjectSet {
	set := make(SubjectSet, len(subjects))
	for _, s := range subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (s SubjectSet) Contains(subject string) bool {
	_, ok := s[subject]
	return ok
}

// Intersect returns the subjects from candidates that are members of the set,
// preserving candidate order.
func (s SubjectSet) Intersect(candidates []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if s.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}

// Subjects returns the members in sorted order.
func (s SubjectSet) Subjects() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve computes the caller's subject set: the primary subject plus every
// subject the resolver reports as associated. Idempotent; does not mutate the
// caller. A resolver failure propagates as ErrUnavailable so the operation
// fails closed instead of proceeding with a partial set.
func Resolve(ctx context.Context, r Resolver, caller Caller) (SubjectSet, error) {
	primary := strings.TrimSpace(caller.Subject)
	if primary == "" {
		return nil, fmt.Errorf("%w: caller subject is required", ErrUnavailable)
	}
	associated, err := r.AssociatedSubjects(ctx, caller, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	set := NewSubjectSet(primary)
	for _, s := range associated {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set, nil
}
