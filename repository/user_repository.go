package repository

import (
	"context"

	"userService/internal/db"
	"userService/internal/errs"
	"userService/internal/pool"
	"userService/models"
)

const listUsersQuery = `SELECT id, email, password FROM users`

// UserRepository reads users through pooled connections.
type UserRepository struct {
	pool *pool.Pool[db.Conn]
}

func NewUserRepository(p *pool.Pool[db.Conn]) *UserRepository {
	return &UserRepository{pool: p}
}

// List returns every user in the order the database yields them. It blocks:
// run it off the request path. The result is never nil.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := r.pool.With(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, listUsersQuery)
		if err != nil {
			return errs.E(errs.KindQuery, "users.list", err)
		}
		defer rows.Close()

		out, err = scanUsers(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanUsers maps rows by column name, so extra columns or a different column
// order are tolerated while a missing one is not.
func scanUsers(rows db.Rows) ([]models.User, error) {
	const op = "users.map"

	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.E(errs.KindRowMapping, op, err)
	}
	idx := map[string]int{"id": -1, "email": -1, "password": -1}
	for i, c := range cols {
		if _, ok := idx[c]; ok {
			idx[c] = i
		}
	}
	for _, name := range []string{"id", "email", "password"} {
		if idx[name] < 0 {
			return nil, errs.Errorf(errs.KindRowMapping, op, "column %s missing", name)
		}
	}

	out := make([]models.User, 0)
	dest := make([]any, len(cols))
	for rows.Next() {
		var u models.User
		for i := range dest {
			dest[i] = new(any)
		}
		dest[idx["id"]] = &u.ID
		dest[idx["email"]] = &u.Email
		dest[idx["password"]] = &u.Password
		if err := rows.Scan(dest...); err != nil {
			return nil, errs.E(errs.KindRowMapping, op, err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindQuery, "users.list", err)
	}
	return out, nil
}
