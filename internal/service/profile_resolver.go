package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/observability/metrics"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
	"github.com/dealshub/dealshub-go/internal/ports"
)

// ErrProfileRepositoryRequired indicates a resolver cannot be constructed without a repository.
var ErrProfileRepositoryRequired = errors.New("profile repository is required")

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Profiles    ports.ProfileRepository
	Roles       ports.RoleMapper
	Retry       RetryPolicy
	DisplayName *DisplayNameExtractor
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Clock       func() time.Time
}

// ResolveOutcome reports how a resolution went. Resolve never fails; a
// non-nil Reason explains why the fallback profile was used.
type ResolveOutcome struct {
	Attempts int
	Found    bool
	Fallback bool
	Reason   error
}

// ProfileResolver turns a principal into an application profile with roles.
type ProfileResolver struct {
	profiles    ports.ProfileRepository
	roles       ports.RoleMapper
	retry       RetryPolicy
	displayName *DisplayNameExtractor
	logger      *slog.Logger
	metrics     statsd.Sink
	now         func() time.Time
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(opts ProfileResolverOptions) (*ProfileResolver, error) {
	if opts.Profiles == nil {
		return nil, ErrProfileRepositoryRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	roles := opts.Roles
	if roles == nil {
		roles = defaultRoleMapper{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &ProfileResolver{
		profiles:    opts.Profiles,
		roles:       roles,
		retry:       opts.Retry.normalized(),
		displayName: opts.DisplayName,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         now,
	}, nil
}

// Resolve looks up the profile row for p, polling while it does not exist yet,
// then attaches the user's roles. Any failure to read the row yields the
// degraded fallback profile {id, display name from principal, roles [user]}.
func (r *ProfileResolver) Resolve(ctx context.Context, p domainauth.Principal) (domainauth.UserProfile, ResolveOutcome) {
	start := r.now()

	row, attempts, err := r.waitForProfile(ctx, p.ID)
	outcome := ResolveOutcome{Attempts: attempts}
	if err != nil {
		outcome.Fallback = true
		outcome.Reason = err
		r.record(ctx, p, outcome, start)
		return domainauth.FallbackProfile(p, r.displayName.Extract(p)), outcome
	}

	outcome.Found = true
	profile := domainauth.UserProfile{
		ID:          row.ID,
		DisplayName: row.FullName,
		Email:       row.Email,
		AvatarURL:   row.AvatarURL,
		Roles:       r.fetchRoles(ctx, p.ID),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if profile.ID == "" {
		profile.ID = p.ID
	}
	if profile.Email == "" {
		profile.Email = p.Email
	}
	if profile.DisplayName == "" {
		profile.DisplayName = r.displayName.Extract(p)
	}

	r.record(ctx, p, outcome, start)
	return profile, outcome
}

// waitForProfile polls for the row. Not-found misses are retried on the
// policy's schedule; any other error ends polling immediately.
func (r *ProfileResolver) waitForProfile(ctx context.Context, id string) (domainauth.ProfileRow, int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		row, err := r.profiles.FetchProfileByID(ctx, id)
		if err == nil {
			return row, attempt, nil
		}
		if ctx.Err() != nil {
			return domainauth.ProfileRow{}, attempt, ctx.Err()
		}
		if !apperrors.IsNotFound(err) {
			return domainauth.ProfileRow{}, attempt, err
		}
		lastErr = err

		delay := r.retry.Delay(attempt)
		r.logger.DebugContext(ctx, "profile row not found yet",
			"user_id", id,
			"attempt", attempt,
			"next_delay", delay,
		)
		if err := r.retry.Sleep(ctx, delay); err != nil {
			return domainauth.ProfileRow{}, attempt, err
		}
	}
	return domainauth.ProfileRow{}, r.retry.MaxAttempts, lastErr
}

func (r *ProfileResolver) fetchRoles(ctx context.Context, id string) domainauth.RoleSet {
	rows, err := r.profiles.FetchRolesByUserID(ctx, id)
	if err != nil {
		r.logger.WarnContext(ctx, "fetch roles failed, using default roles", "user_id", id, "error", err)
		return domainauth.DefaultRoles()
	}
	return r.roles.Map(rows)
}

func (r *ProfileResolver) record(ctx context.Context, p domainauth.Principal, o ResolveOutcome, start time.Time) {
	result := metrics.ResultSuccess
	switch {
	case ctx.Err() != nil:
		result = metrics.ResultStale
	case o.Fallback:
		result = metrics.ResultFallback
		r.logger.WarnContext(ctx, "profile unavailable, using fallback profile",
			"user_id", p.ID,
			"attempts", o.Attempts,
			"error_kind", apperrors.Kind(o.Reason),
			"error", o.Reason,
		)
	}
	metrics.EmitResolution(r.metrics, metrics.ResolutionMetric{
		Result:   result,
		Attempts: o.Attempts,
		Duration: r.now().Sub(start),
		Err:      o.Reason,
	})
}

// defaultRoleMapper normalizes role names and defaults to {"user"}.
type defaultRoleMapper struct{}

func (defaultRoleMapper) Map(rows []domainauth.RoleRow) domainauth.RoleSet {
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	set := domainauth.NewRoleSet(names...)
	if len(set) == 0 {
		return domainauth.DefaultRoles()
	}
	return set
}
