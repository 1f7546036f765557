package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealshub/dealshub-go/internal/data/pgxutil"
	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

const (
	profileColumns = `id::text AS id, COALESCE(full_name, '') AS full_name, email,
		COALESCE(avatar_url, '') AS avatar_url, created_at, updated_at`

	profileGetByIDQuery = `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	profileRolesQuery = `
		SELECT r.name, r.permissions
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`

	profileUpdateQuery = `
		UPDATE users SET
			full_name  = COALESCE($2, full_name),
			avatar_url = COALESCE($3, avatar_url)
		WHERE id = $1
		RETURNING ` + profileColumns

	profileUpsertQuery = `
		INSERT INTO users (id, email, full_name, avatar_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + profileColumns

	roleGrantQuery = `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, r.id FROM roles r WHERE r.name = $2
		ON CONFLICT DO NOTHING`

	roleEnsureQuery = `
		INSERT INTO roles (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`

	roleRevokeQuery = `
		DELETE FROM user_roles ur
		USING roles r
		WHERE ur.role_id = r.id AND ur.user_id = $1 AND r.name = $2`
)

// ErrInvalidUserID is returned when an id is not a UUID.
var ErrInvalidUserID = errors.New("user id must be a UUID")

// ProfileRepo reads and writes profile rows and role memberships directly in Postgres.
type ProfileRepo struct {
	DB *sql.DB
}

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db}
}

// FetchProfileByID returns the profile row for id or a NotFound error.
func (r *ProfileRepo) FetchProfileByID(ctx context.Context, id string) (domainauth.ProfileRow, error) {
	if err := validUserID(id); err != nil {
		return domainauth.ProfileRow{}, apperrors.NotFoundf("profile %s not found", id)
	}
	var out domainauth.ProfileRow
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.ProfileRow])
		return err
	}); err != nil {
		return domainauth.ProfileRow{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// FetchRolesByUserID returns the role memberships of id, ordered by name.
func (r *ProfileRepo) FetchRolesByUserID(ctx context.Context, id string) ([]domainauth.RoleRow, error) {
	if err := validUserID(id); err != nil {
		return nil, nil
	}
	var out []domainauth.RoleRow
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileRolesQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domainauth.RoleRow, error) {
			var rr domainauth.RoleRow
			err := row.Scan(&rr.Name, &rr.Permissions)
			return rr, err
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to fetch roles for %s: %w", id, apperrors.MapDBError(err))
	}
	return out, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the updated row.
func (r *ProfileRepo) UpdateProfile(
	ctx context.Context,
	id string,
	upd domainauth.ProfileUpdate,
) (domainauth.ProfileRow, error) {
	if upd.Empty() {
		return domainauth.ProfileRow{}, apperrors.Validation("no profile fields to update")
	}
	if err := validUserID(id); err != nil {
		return domainauth.ProfileRow{}, apperrors.ValidationField("id", err.Error())
	}
	var out domainauth.ProfileRow
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileUpdateQuery, id, upd.FullName, upd.AvatarURL)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.ProfileRow])
		return err
	}); err != nil {
		return domainauth.ProfileRow{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// UpsertProfile creates the profile row for a principal, or refreshes its email.
// The default role is granted by the insert trigger.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, row domainauth.ProfileRow) (domainauth.ProfileRow, error) {
	if err := validUserID(row.ID); err != nil {
		return domainauth.ProfileRow{}, apperrors.ValidationField("id", err.Error())
	}
	email := strings.TrimSpace(row.Email)
	if email == "" {
		return domainauth.ProfileRow{}, apperrors.ValidationField("email", "email is required")
	}
	var out domainauth.ProfileRow
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileUpsertQuery, row.ID, email, row.FullName, row.AvatarURL)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.ProfileRow])
		return err
	}); err != nil {
		return domainauth.ProfileRow{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// GrantRole adds role to the user, creating the role when it does not exist.
func (r *ProfileRepo) GrantRole(ctx context.Context, id, role string) error {
	name := domainauth.NormalizeRole(role)
	if name == "" {
		return apperrors.ValidationField("role", "role is required")
	}
	if err := validUserID(id); err != nil {
		return apperrors.ValidationField("id", err.Error())
	}
	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, roleEnsureQuery, name); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, roleGrantQuery, id, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to grant role %q: %w", name, apperrors.MapDBError(err))
	}
	return nil
}

// RevokeRole removes role from the user. It reports whether a membership was removed.
func (r *ProfileRepo) RevokeRole(ctx context.Context, id, role string) (bool, error) {
	name := domainauth.NormalizeRole(role)
	if name == "" {
		return false, apperrors.ValidationField("role", "role is required")
	}
	if err := validUserID(id); err != nil {
		return false, apperrors.ValidationField("id", err.Error())
	}
	var removed bool
	if err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, roleRevokeQuery, id, name)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		return nil
	}); err != nil {
		return false, fmt.Errorf("failed to revoke role %q: %w", name, apperrors.MapDBError(err))
	}
	return removed, nil
}

func validUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidUserID
	}
	return nil
}
