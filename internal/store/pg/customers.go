package pg

import (
	"context"
	"fmt"
	"time"

	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/ids"
)

const customerColumns = `id, subject, coalesce(email,''), coalesce(given_name,''), coalesce(surname,''), balance, coalesce(currency,''), delinquent, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (bookkeeper.Customer, error) {
	var c bookkeeper.Customer
	err := row.Scan(&c.ID, &c.Subject, &c.Email, &c.GivenName, &c.Surname,
		&c.Balance, &c.Currency, &c.Delinquent, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) InsertCustomer(ctx context.Context, c bookkeeper.Customer) (bookkeeper.Customer, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into customers(id, subject, email, given_name, surname, balance, currency, delinquent, created_at, updated_at)
		values ($1,$2,nullif($3,''),nullif($4,''),nullif($5,''),$6,nullif($7,''),$8,$9,$10)
	`, c.ID, c.Subject, c.Email, c.GivenName, c.Surname, c.Balance, c.Currency, c.Delinquent, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bookkeeper.Customer{}, fmt.Errorf("%w: subject %s already registered", bookkeeper.ErrConflict, c.Subject)
		}
		return bookkeeper.Customer{}, wrapErr("insert customer", err)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (bookkeeper.CustomerAccount, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `select `+customerColumns+` from customers where id=$1`, id))
	if err != nil {
		return bookkeeper.CustomerAccount{}, wrapErr("get customer", err)
	}
	quotas, err := s.FindQuotasByCustomer(ctx, c.ID)
	if err != nil {
		return bookkeeper.CustomerAccount{}, err
	}
	return bookkeeper.CustomerAccount{Customer: c, Quotas: quotas}, nil
}

func (s *Store) GetCustomerBySubject(ctx context.Context, subject string) (bookkeeper.CustomerAccount, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `select `+customerColumns+` from customers where subject=$1`, subject))
	if err != nil {
		return bookkeeper.CustomerAccount{}, wrapErr("get customer by subject", err)
	}
	quotas, err := s.FindQuotasByCustomer(ctx, c.ID)
	if err != nil {
		return bookkeeper.CustomerAccount{}, err
	}
	return bookkeeper.CustomerAccount{Customer: c, Quotas: quotas}, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]bookkeeper.CustomerAccount, error) {
	rows, err := s.db.QueryContext(ctx, `select `+customerColumns+` from customers order by id`)
	if err != nil {
		return nil, wrapErr("query customers", err)
	}
	defer rows.Close()

	var customers []bookkeeper.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, wrapErr("scan customer", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate customers", err)
	}

	out := make([]bookkeeper.CustomerAccount, 0, len(customers))
	for _, c := range customers {
		quotas, err := s.FindQuotasByCustomer(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, bookkeeper.CustomerAccount{Customer: c, Quotas: quotas})
	}
	return out, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	var owned int
	if err := s.db.QueryRowContext(ctx, `select count(1) from quotas where customer_id=$1`, id).Scan(&owned); err != nil {
		return wrapErr("count owned quotas", err)
	}
	if owned > 0 {
		return fmt.Errorf("%w: customer %s still owns %d quotas", bookkeeper.ErrConflict, id, owned)
	}
	res, err := s.db.ExecContext(ctx, `delete from customers where id=$1`, id)
	if err != nil {
		return wrapErr("delete customer", err)
	}
	return requireRow(res, bookkeeper.ErrNotFound)
}
