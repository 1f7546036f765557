package supabase

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

const (
	pgrstObject   = "application/vnd.pgrst.object+json"
	pgrstNoRows   = "PGRST116"
	profilesTable = "/users"
	rolesTable    = "/user_roles"
	rolesSelect   = "roles!inner(name,permissions)"
)

var (
	_ ports.ProfileRepository = (*Profiles)(nil)
	_ ports.ProfileWriter     = (*Profiles)(nil)
)

// Profiles reads and writes profile rows through PostgREST. Requests carry
// the token from its source, so row-level security sees the signed-in user.
type Profiles struct {
	c      *Client
	tokens oauth2.TokenSource
}

// Profiles returns a REST profile store authorized by ts. A nil ts uses the
// service role key when configured, otherwise the anon key.
func (c *Client) Profiles(ts oauth2.TokenSource) *Profiles {
	if ts == nil {
		key := c.serviceKey
		if key == "" {
			key = c.anonKey
		}
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"})
	}
	return &Profiles{c: c, tokens: ts}
}

func (p *Profiles) send(ctx context.Context, r request) error {
	tok, err := p.token(ctx)
	if err != nil {
		return err
	}
	r.bearer = tok.AccessToken
	return p.c.do(ctx, r)
}

func (p *Profiles) token(ctx context.Context) (*oauth2.Token, error) {
	if cs, ok := p.tokens.(ports.ContextTokenSource); ok {
		return cs.TokenContext(ctx)
	}
	return p.tokens.Token()
}

func eq(v string) string { return "eq." + v }

// FetchProfileByID returns the users row for id.
func (p *Profiles) FetchProfileByID(ctx context.Context, id string) (domainauth.ProfileRow, error) {
	var row domainauth.ProfileRow
	err := p.send(ctx, request{
		method: http.MethodGet,
		path:   restPath + profilesTable,
		query:  url.Values{"id": {eq(id)}, "select": {"*"}},
		header: http.Header{"Accept": {pgrstObject}},
		out:    &row,
	})
	if err != nil {
		return domainauth.ProfileRow{}, notFoundIfNoRows(err, id)
	}
	return row, nil
}

// FetchRolesByUserID returns the role memberships of id.
func (p *Profiles) FetchRolesByUserID(ctx context.Context, id string) ([]domainauth.RoleRow, error) {
	var rows []struct {
		Roles domainauth.RoleRow `json:"roles"`
	}
	err := p.send(ctx, request{
		method: http.MethodGet,
		path:   restPath + rolesTable,
		query:  url.Values{"user_id": {eq(id)}, "select": {rolesSelect}},
		out:    &rows,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domainauth.RoleRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Roles)
	}
	return out, nil
}

// UpdateProfile patches the editable columns of id and returns the new row.
func (p *Profiles) UpdateProfile(
	ctx context.Context,
	id string,
	upd domainauth.ProfileUpdate,
) (domainauth.ProfileRow, error) {
	if upd.Empty() {
		return domainauth.ProfileRow{}, apperrors.Validation("no profile fields to update")
	}
	var row domainauth.ProfileRow
	err := p.send(ctx, request{
		method: http.MethodPatch,
		path:   restPath + profilesTable,
		query:  url.Values{"id": {eq(id)}},
		header: http.Header{"Accept": {pgrstObject}, "Prefer": {"return=representation"}},
		body:   upd,
		out:    &row,
	})
	if err != nil {
		return domainauth.ProfileRow{}, notFoundIfNoRows(err, id)
	}
	return row, nil
}

// notFoundIfNoRows maps the PostgREST single-object miss to NotFound.
func notFoundIfNoRows(err error, id string) error {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return err
	}
	if apiErr.Code == pgrstNoRows || apiErr.Status == http.StatusNotAcceptable {
		return apperrors.NotFoundf("profile %s not found", id)
	}
	return err
}
