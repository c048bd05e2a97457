package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/ids"
)

const usageColumns = `id, quota_id, instance_id, quantity, status, created_at, updated_at`

func scanUsage(row interface{ Scan(...any) error }) (bookkeeper.Usage, error) {
	var u bookkeeper.Usage
	err := row.Scan(&u.ID, &u.QuotaID, &u.InstanceID, &u.Quantity, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) InsertUsage(ctx context.Context, u bookkeeper.Usage) (bookkeeper.Usage, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into usages(id, quota_id, instance_id, quantity, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.QuotaID, u.InstanceID, u.Quantity, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bookkeeper.Usage{}, fmt.Errorf("%w: usage %s already exists", bookkeeper.ErrConflict, u.ID)
		}
		return bookkeeper.Usage{}, wrapErr("insert usage", err)
	}
	return u, nil
}

func (s *Store) GetUsage(ctx context.Context, id string) (bookkeeper.Usage, error) {
	u, err := scanUsage(s.db.QueryRowContext(ctx, `select `+usageColumns+` from usages where id=$1`, id))
	if err != nil {
		return bookkeeper.Usage{}, wrapErr("get usage", err)
	}
	return u, nil
}

func (s *Store) FindUsagesByQuota(ctx context.Context, quotaID string, statuses []string) ([]bookkeeper.Usage, error) {
	query := `select ` + usageColumns + ` from usages where quota_id=$1`
	args := []any{quotaID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, st)
		}
		query += ` and status in (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` order by id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query usages", err)
	}
	defer rows.Close()

	var out []bookkeeper.Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, wrapErr("scan usage", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate usages", err)
	}
	return out, nil
}

func (s *Store) FindUsageByInstance(ctx context.Context, quotaID, instanceID string) (bookkeeper.Usage, error) {
	u, err := scanUsage(s.db.QueryRowContext(ctx,
		`select `+usageColumns+` from usages where quota_id=$1 and instance_id=$2`, quotaID, instanceID))
	if err != nil {
		return bookkeeper.Usage{}, wrapErr("find usage by instance", err)
	}
	return u, nil
}

func (s *Store) UpdateUsage(ctx context.Context, u bookkeeper.Usage) error {
	res, err := s.db.ExecContext(ctx, `
		update usages set quantity=$2, status=$3, updated_at=$4 where id=$1
	`, u.ID, u.Quantity, u.Status, time.Now().UTC())
	if err != nil {
		return wrapErr("update usage", err)
	}
	return requireRow(res, bookkeeper.ErrNotFound)
}

func (s *Store) DeleteUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from usages where id=$1`, id)
	if err != nil {
		return wrapErr("delete usage", err)
	}
	return requireRow(res, bookkeeper.ErrNotFound)
}
