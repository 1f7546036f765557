package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dealshub/dealshub-go/internal/adapters/authroles"
	"github.com/dealshub/dealshub-go/internal/data"
	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/ports"
)

type roleOptions struct {
	UserID string
	Role   string
	// NoNotify skips announcing the change to running gateways.
	NoNotify bool
}

func parseRoleFlags(name string, args []string) (roleOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts roleOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID (UUID)")
	fs.StringVar(&opts.Role, "role", "", "Role name, e.g. admin or moderator")
	fs.BoolVar(&opts.NoNotify, "no-notify", false, "Do not refresh live sessions of the user")

	if err := fs.Parse(args); err != nil {
		return roleOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.Role = domainauth.NormalizeRole(opts.Role)

	switch {
	case opts.UserID == "":
		return roleOptions{}, errors.New("--user is required")
	case opts.Role == "":
		return roleOptions{}, errors.New("--role is required")
	}
	return opts, nil
}

func runGrantRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseRoleFlags("grant-role", args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, roleNeeds(!opts.NoNotify), func(conns *infra) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		if err := data.NewProfileRepo(conns.DB).GrantRole(ctx, opts.UserID, opts.Role); err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "Granted %q to %s\n", opts.Role, opts.UserID); err != nil {
			return err
		}
		return announceUserUpdated(ctx, cmdCtx, conns.Bus, opts.UserID)
	})
}

func runRevokeRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseRoleFlags("revoke-role", args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, roleNeeds(!opts.NoNotify), func(conns *infra) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		removed, err := data.NewProfileRepo(conns.DB).RevokeRole(ctx, opts.UserID, opts.Role)
		if err != nil {
			return err
		}
		if !removed {
			return writef(cmdCtx.Out, "%s did not hold %q; nothing to do\n", opts.UserID, opts.Role)
		}
		if err := writef(cmdCtx.Out, "Revoked %q from %s\n", opts.Role, opts.UserID); err != nil {
			return err
		}
		return announceUserUpdated(ctx, cmdCtx, conns.Bus, opts.UserID)
	})
}

// announceUserUpdated makes running gateways re-resolve the user's profile so
// guards see the new roles on the next navigation.
func announceUserUpdated(ctx context.Context, cmdCtx *commandContext, bus ports.EventPublisher, userID string) error {
	if bus == nil {
		return nil
	}
	err := bus.Publish(ctx, ports.RemoteAuthEvent{
		Origin:     adminEventOrigin,
		UserID:     userID,
		Event:      domainauth.EventUserUpdated,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("announce role change: %w", err)
	}
	cmdCtx.Logger.Info("announced role change to running gateways", "user_id", userID)
	return nil
}

type showProfileOptions struct {
	UserID  string
	RawJSON bool
}

func parseShowProfileFlags(args []string) (showProfileOptions, error) {
	fs := flag.NewFlagSet("show-profile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts showProfileOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID (UUID)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print JSON instead of text")

	if err := fs.Parse(args); err != nil {
		return showProfileOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return showProfileOptions{}, errors.New("--user is required")
	}
	return opts, nil
}

// profileReport is what show-profile prints.
type profileReport struct {
	Profile     domainauth.ProfileRow `json:"profile"`
	StoredRoles []string              `json:"stored_roles"`
	Roles       domainauth.RoleSet    `json:"roles"`
	IsAdmin     bool                  `json:"is_admin"`
}

func buildProfileReport(row domainauth.ProfileRow, roles []domainauth.RoleRow, mapper ports.RoleMapper) profileReport {
	stored := make([]string, 0, len(roles))
	for _, r := range roles {
		stored = append(stored, r.Name)
	}
	resolved := mapper.Map(roles)
	return profileReport{
		Profile:     row,
		StoredRoles: stored,
		Roles:       resolved,
		IsAdmin:     resolved.IsAdmin(),
	}
}

func runShowProfile(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowProfileFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, needDB, func(conns *infra) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		repo := data.NewProfileRepo(conns.DB)
		row, err := repo.FetchProfileByID(ctx, opts.UserID)
		if err != nil {
			return err
		}
		roles, err := repo.FetchRolesByUserID(ctx, opts.UserID)
		if err != nil {
			return err
		}
		report := buildProfileReport(row, roles, authroles.NewNormalizingRoleMapper(cmdCtx.Config.Auth.RoleAliases))
		return printProfileReport(cmdCtx, report, opts.RawJSON)
	})
}

func printProfileReport(cmdCtx *commandContext, report profileReport, raw bool) error {
	if raw {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	name := report.Profile.FullName
	if name == "" {
		name = "(none)"
	}
	lines := []string{
		"ID:           " + report.Profile.ID,
		"Email:        " + report.Profile.Email,
		"Full name:    " + name,
		"Stored roles: " + strings.Join(report.StoredRoles, ", "),
		"Roles:        " + strings.Join(report.Roles, ", "),
		fmt.Sprintf("Admin:        %t", report.IsAdmin),
	}
	for _, line := range lines {
		if err := writeln(cmdCtx.Out, line); err != nil {
			return err
		}
	}
	return nil
}
