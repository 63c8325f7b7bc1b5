package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// where accumulates AND-ed conditions written with `?` bindvars; rebind them before running the query.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// validUUIDs drops the ids postgres would refuse to cast to UUID; they cannot match any row anyway.
func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

// trapNoRowsErr maps sql.ErrNoRows to notFoundErr.
func trapNoRowsErr(err, notFoundErr error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFoundErr
	}
	return errors.Wrap(err, msg)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "getting rows affected")
	}
	return int(n), nil
}
