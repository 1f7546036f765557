package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
		wantMsg   string
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "email"},
			wantCode:  ErrCodeConflict,
			wantField: "email",
		},
		{
			name: "unique from detail",
			err: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (name)=(admin) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "name",
		},
		{
			name: "missing user",
			err: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (user_id)=(0d6c...) is not present in table "users".`,
			},
			wantCode: ErrCodeNotFound,
			wantMsg:  "referenced user does not exist",
		},
		{
			name:     "missing unknown parent",
			err:      &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			wantCode: ErrCodeNotFound,
			wantMsg:  "referenced record does not exist",
		},
		{
			name:      "not null",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "email"},
			wantCode:  ErrCodeValidation,
			wantField: "email",
		},
		{name: "bad uuid", err: &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation}, wantCode: ErrCodeValidation},
		{name: "statement timeout", err: &pgconn.PgError{Code: pgerrcode.QueryCanceled}, wantCode: ErrCodeTimeout},
		{name: "shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, wantCode: ErrCodeNetwork},
		{name: "other pg error", err: &pgconn.PgError{Code: pgerrcode.SyntaxError}, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.wantCode, GetCode(got))
			assert.Equal(t, tt.wantField, GetField(got))
			if tt.wantMsg != "" {
				var appErr *AppError
				require.ErrorAs(t, got, &appErr)
				assert.Equal(t, tt.wantMsg, appErr.Message)
			}
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestMapDBError_Passthrough(t *testing.T) {
	assert.NoError(t, MapDBError(nil))

	plain := fmt.Errorf("dial: refused")
	assert.Same(t, plain, MapDBError(plain))
}
