package pg

import (
	"context"

	"bookkeeper.org/internal/identity"
)

// Memberships reads subject group membership from the subject_groups table.
type Memberships struct {
	store *Store
}

var _ identity.MembershipStore = (*Memberships)(nil)

// NewMemberships exposes the store's subject_groups table as a membership
// source for the identity directory.
func NewMemberships(store *Store) *Memberships {
	return &Memberships{store: store}
}

func (m *Memberships) GroupsFor(ctx context.Context, subject string) ([]string, error) {
	rows, err := m.store.db.QueryContext(ctx,
		`select group_subject from subject_groups where member_subject=$1 order by group_subject`, subject)
	if err != nil {
		return nil, wrapErr("query memberships", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, wrapErr("scan membership", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate memberships", err)
	}
	return groups, nil
}
