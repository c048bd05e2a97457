package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/ids"
)

const quotaColumns = `id, name, soft_limit, hard_limit, unit, coalesce(customer_id,''), coalesce(subject,''), created_at, updated_at`

func scanQuota(row interface{ Scan(...any) error }) (bookkeeper.Quota, error) {
	var q bookkeeper.Quota
	err := row.Scan(&q.ID, &q.Name, &q.SoftLimit, &q.HardLimit, &q.Unit,
		&q.CustomerID, &q.Subject, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (s *Store) ListQuotas(ctx context.Context) ([]bookkeeper.Quota, error) {
	return s.queryQuotas(ctx, `select `+quotaColumns+` from quotas order by id`)
}

func (s *Store) GetQuota(ctx context.Context, id string) (bookkeeper.Quota, error) {
	q, err := scanQuota(s.db.QueryRowContext(ctx, `select `+quotaColumns+` from quotas where id=$1`, id))
	if err != nil {
		return bookkeeper.Quota{}, wrapErr("get quota", err)
	}
	return q, nil
}

func (s *Store) InsertQuota(ctx context.Context, q bookkeeper.Quota) (bookkeeper.Quota, error) {
	if q.ID == "" {
		q.ID = ids.New()
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into quotas(id, name, soft_limit, hard_limit, unit, customer_id, subject, created_at, updated_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),$8,$9)
	`, q.ID, q.Name, q.SoftLimit, q.HardLimit, q.Unit, q.CustomerID, q.Subject, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bookkeeper.Quota{}, fmt.Errorf("%w: quota %s already exists", bookkeeper.ErrConflict, q.ID)
		}
		return bookkeeper.Quota{}, wrapErr("insert quota", err)
	}
	return q, nil
}

func (s *Store) UpdateQuota(ctx context.Context, q bookkeeper.Quota) error {
	res, err := s.db.ExecContext(ctx, `
		update quotas
		set name=$2, soft_limit=$3, hard_limit=$4, unit=$5,
		    customer_id=nullif($6,''), subject=nullif($7,''), updated_at=$8
		where id=$1
	`, q.ID, q.Name, q.SoftLimit, q.HardLimit, q.Unit, q.CustomerID, q.Subject, time.Now().UTC())
	if err != nil {
		return wrapErr("update quota", err)
	}
	return requireRow(res, bookkeeper.ErrNotFound)
}

func (s *Store) DeleteQuota(ctx context.Context, id string) error {
	// Usage rows referencing the quota stay behind for audit retention.
	res, err := s.db.ExecContext(ctx, `delete from quotas where id=$1`, id)
	if err != nil {
		return wrapErr("delete quota", err)
	}
	return requireRow(res, bookkeeper.ErrNotFound)
}

func (s *Store) FindQuotasBySubjects(ctx context.Context, subjects []string) ([]bookkeeper.Quota, error) {
	if len(subjects) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(subjects))
	args := make([]any, len(subjects))
	for i, sub := range subjects {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = sub
	}
	query := `select ` + quotaColumns + ` from quotas where subject in (` +
		strings.Join(placeholders, ",") + `) order by id`
	return s.queryQuotas(ctx, query, args...)
}

func (s *Store) FindQuotasByCustomer(ctx context.Context, customerID string) ([]bookkeeper.Quota, error) {
	return s.queryQuotas(ctx, `select `+quotaColumns+` from quotas where customer_id=$1 order by id`, customerID)
}

func (s *Store) ListUnassignedQuotas(ctx context.Context) ([]bookkeeper.Quota, error) {
	return s.queryQuotas(ctx, `select `+quotaColumns+` from quotas where customer_id is null and subject is null order by id`)
}

func (s *Store) queryQuotas(ctx context.Context, query string, args ...any) ([]bookkeeper.Quota, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query quotas", err)
	}
	defer rows.Close()

	var out []bookkeeper.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, wrapErr("scan quota", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate quotas", err)
	}
	return out, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("rows affected", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// isUniqueViolation matches Postgres unique constraint failures without
// depending on driver error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr interface{ SQLState() string }
	if errors.As(err, &sqlErr) {
		return sqlErr.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "23505")
}
