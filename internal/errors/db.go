package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column from "Key (email)=(x) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// referenceNames maps the tables of the profile schema to what a caller calls them.
var referenceNames = map[string]string{
	"users":      "user",
	"roles":      "role",
	"user_roles": "role membership",
}

// MapDBError translates database failures into AppErrors. Errors it does not
// recognize are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "database request timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "database request canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "resource not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) *AppError {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		e := Wrap(pgErr, ErrCodeConflict, "this value already exists")
		e.Field = uniqueField(pgErr)
		return e
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeNotFound, "referenced "+referenceName(pgErr)+" does not exist")
	case pgerrcode.NotNullViolation:
		e := Wrap(pgErr, ErrCodeValidation, "required field is missing")
		e.Field = pgErr.ColumnName
		return e
	case pgerrcode.CheckViolation, pgerrcode.StringDataRightTruncationDataException:
		e := Wrap(pgErr, ErrCodeValidation, "invalid value")
		e.Field = pgErr.ColumnName
		return e
	case pgerrcode.InvalidTextRepresentation:
		return Wrap(pgErr, ErrCodeValidation, "malformed identifier")
	case pgerrcode.QueryCanceled:
		return Wrap(pgErr, ErrCodeTimeout, "database request timed out")
	case pgerrcode.AdminShutdown, pgerrcode.CannotConnectNow, pgerrcode.TooManyConnections:
		return Wrap(pgErr, ErrCodeNetwork, "database unavailable")
	default:
		return Wrap(pgErr, ErrCodeInternal, "database error")
	}
}

func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return ""
}

// referenceName names the missing parent row. Detail reads
// `Key (user_id)=(...) is not present in table "users".`.
func referenceName(pgErr *pgconn.PgError) string {
	for table, name := range referenceNames {
		if strings.Contains(pgErr.Detail, `table "`+table+`"`) {
			return name
		}
	}
	return "record"
}
