package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/ports"
)

type sessionFilter struct {
	UserID      string
	ExpiredOnly bool
	Anonymous   bool
}

func (f sessionFilter) matches(sess domainauth.BrowserSession, now time.Time) bool {
	if f.UserID != "" && sess.UserID() != f.UserID {
		return false
	}
	if f.Anonymous && sess.UserID() != "" {
		return false
	}
	if f.ExpiredOnly && (sess.ExpiresAt.IsZero() || sess.ExpiresAt.After(now)) {
		return false
	}
	return true
}

func filterSessions(all []domainauth.BrowserSession, f sessionFilter, now time.Time) []domainauth.BrowserSession {
	out := make([]domainauth.BrowserSession, 0, len(all))
	for _, sess := range all {
		if f.matches(sess, now) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func bindFilterFlags(fs *flag.FlagSet, f *sessionFilter) {
	fs.StringVar(&f.UserID, "user", "", "Only sessions signed in as this user ID")
	fs.BoolVar(&f.ExpiredOnly, "expired", false, "Only sessions past their expiry")
	fs.BoolVar(&f.Anonymous, "anonymous", false, "Only sessions with no signed-in user")
}

type listSessionsOptions struct {
	Filter sessionFilter
	Limit  int
}

func parseListSessionsFlags(args []string) (listSessionsOptions, error) {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listSessionsOptions
	bindFilterFlags(fs, &opts.Filter)
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum rows to print (0 for all)")

	if err := fs.Parse(args); err != nil {
		return listSessionsOptions{}, err
	}
	if opts.Limit < 0 {
		return listSessionsOptions{}, errors.New("--limit must not be negative")
	}
	if opts.Filter.Anonymous && opts.Filter.UserID != "" {
		return listSessionsOptions{}, errors.New("--anonymous and --user are mutually exclusive")
	}
	return opts, nil
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseListSessionsFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, needRedis, func(conns *infra) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		all, err := conns.Sessions.List(ctx)
		if err != nil {
			return err
		}
		matched := filterSessions(all, opts.Filter, time.Now())
		return renderSessions(cmdCtx.Out, matched, opts.Limit, time.Now())
	})
}

func renderSessions(w io.Writer, sessions []domainauth.BrowserSession, limit int, now time.Time) error {
	if len(sessions) == 0 {
		return writeln(w, "No sessions found.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "SESSION\tUSER\tEMAIL\tCREATED\tEXPIRES\n"); err != nil {
		return err
	}
	shown := sessions
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, sess := range shown {
		user, email := "-", "-"
		if sess.Backend.HasPrincipal() {
			user, email = sess.Backend.User.ID, sess.Backend.User.Email
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			sess.ID, user, email,
			sess.CreatedAt.UTC().Format(time.RFC3339),
			renderExpiry(sess.ExpiresAt, now),
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(shown) < len(sessions) {
		return writef(w, "... %d more (raise --limit)\n", len(sessions)-len(shown))
	}
	return nil
}

func renderExpiry(at, now time.Time) string {
	switch {
	case at.IsZero():
		return "never"
	case !at.After(now):
		return "expired"
	default:
		return "in " + at.Sub(now).Round(time.Second).String()
	}
}

type purgeSessionsOptions struct {
	Filter sessionFilter
	All    bool
	DryRun bool
	Yes    bool
}

func parsePurgeSessionsFlags(args []string) (purgeSessionsOptions, error) {
	fs := flag.NewFlagSet("purge-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts purgeSessionsOptions
	bindFilterFlags(fs, &opts.Filter)
	fs.BoolVar(&opts.All, "all", false, "Purge every session")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print what would be purged")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return purgeSessionsOptions{}, err
	}
	hasFilter := opts.Filter != (sessionFilter{})
	switch {
	case opts.All && hasFilter:
		return purgeSessionsOptions{}, errors.New("--all cannot be combined with --user, --expired, or --anonymous")
	case !opts.All && !hasFilter:
		return purgeSessionsOptions{}, errors.New("choose --all or at least one of --user, --expired, --anonymous")
	case opts.Filter.Anonymous && opts.Filter.UserID != "":
		return purgeSessionsOptions{}, errors.New("--anonymous and --user are mutually exclusive")
	}
	return opts, nil
}

func runPurgeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeSessionsFlags(args)
	if err != nil {
		return err
	}
	return withInfra(cmdCtx, needRedis, func(conns *infra) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		all, err := conns.Sessions.List(ctx)
		if err != nil {
			return err
		}
		matched := filterSessions(all, opts.Filter, time.Now())
		if len(matched) == 0 {
			return writeln(cmdCtx.Out, "No sessions matched.")
		}

		prompt := fmt.Sprintf("About to purge %d session(s).", len(matched))
		if err := confirmAction(cmdCtx, prompt, opts.Yes, opts.DryRun); err != nil {
			return err
		}
		if opts.DryRun {
			if err := writef(cmdCtx.Out, "Dry run: would purge %d session(s)\n", len(matched)); err != nil {
				return err
			}
			return renderSessions(cmdCtx.Out, matched, 0, time.Now())
		}

		// A remote sign-out ends every session of the user, so an expiry sweep
		// must not announce one.
		var bus ports.EventPublisher
		if !opts.Filter.ExpiredOnly {
			bus = conns.Bus
		}
		purged, err := purgeSessions(ctx, conns.Sessions, bus, matched)
		if werr := writef(cmdCtx.Out, "Purged %d of %d session(s)\n", purged, len(matched)); werr != nil {
			err = errors.Join(err, werr)
		}
		return err
	})
}

type sessionDeleter interface {
	Delete(ctx context.Context, id string) error
}

// purgeSessions deletes the sessions and then announces a sign-out for every
// affected user, so running gateways drop the in-memory copies as well.
func purgeSessions(
	ctx context.Context,
	store sessionDeleter,
	bus ports.EventPublisher,
	sessions []domainauth.BrowserSession,
) (int, error) {
	var errs []error
	purged := 0
	users := make(map[string]struct{})
	for _, sess := range sessions {
		if err := store.Delete(ctx, sess.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete session %s: %w", sess.ID, err))
			continue
		}
		purged++
		if id := sess.UserID(); id != "" {
			users[id] = struct{}{}
		}
	}

	if bus != nil {
		ids := make([]string, 0, len(users))
		for id := range users {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			err := bus.Publish(ctx, ports.RemoteAuthEvent{
				Origin:     adminEventOrigin,
				UserID:     id,
				Event:      domainauth.EventSignedOut,
				OccurredAt: time.Now().UTC(),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("announce sign out for %s: %w", id, err))
			}
		}
	}
	return purged, errors.Join(errs...)
}
