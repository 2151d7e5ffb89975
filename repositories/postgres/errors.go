package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/upb/multicloud-dashboard/repositories"
)

const uniqueViolation = "23505"

// translate maps driver errors onto repository sentinels
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repositories.ErrDuplicate
	}
	return err
}

// requireAffected returns ErrNotFound when a write touched no rows
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
