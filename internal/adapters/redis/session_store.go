// Package redis persists browser sessions and carries auth events between
// gateway instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

const (
	defaultSessionPrefix = "dealshub:session:"
	listBatchSize        = 200
)

var (
	_ ports.SessionStore  = (*SessionStore)(nil)
	_ ports.SessionLister = (*SessionStore)(nil)
)

// ErrNotFound is returned for unknown, empty or expired session ids.
var ErrNotFound error = apperrors.NotFound("session not found")

// SessionStore keeps one JSON document per browser session under
// <prefix><id>. Redis expires the key at the session's ExpiresAt.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// SessionStoreOption customizes a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithKeyPrefix sets the key prefix. The default is "dealshub:session:".
func WithKeyPrefix(prefix string) SessionStoreOption {
	return func(s *SessionStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewSessionStore returns a store backed by client.
func NewSessionStore(client redis.UniversalClient, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{client: client, prefix: defaultSessionPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

// Save writes sess and sets the key to expire with it. An already expired
// session is rejected rather than written.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.BrowserSession) error {
	if sess.ID == "" {
		return apperrors.Validation("session id is required")
	}
	if !sess.ExpiresAt.After(s.now()) {
		return apperrors.Validation("session already expired")
	}
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.client.SetArgs(ctx, s.key(sess.ID), doc, redis.SetArgs{ExpireAt: sess.ExpiresAt}).Err()
	if err != nil {
		return apperrors.AsNetwork(fmt.Errorf("redis set: %w", err), "save session")
	}
	return nil
}

// Get loads a session. Records past ExpiresAt are deleted and reported as
// not found, covering clock skew between instances and Redis.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.BrowserSession, error) {
	if id == "" {
		return domainauth.BrowserSession{}, ErrNotFound
	}
	doc, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domainauth.BrowserSession{}, ErrNotFound
	case err != nil:
		return domainauth.BrowserSession{}, apperrors.AsNetwork(fmt.Errorf("redis get: %w", err), "load session")
	}

	sess, live, err := s.decode(doc)
	if err != nil {
		return domainauth.BrowserSession{}, err
	}
	if !live {
		if err := s.Delete(ctx, id); err != nil {
			return domainauth.BrowserSession{}, fmt.Errorf("drop expired session: %w", err)
		}
		return domainauth.BrowserSession{}, ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) decode(doc []byte) (domainauth.BrowserSession, bool, error) {
	var sess domainauth.BrowserSession
	if err := json.Unmarshal(doc, &sess); err != nil {
		return sess, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, s.now().Before(sess.ExpiresAt), nil
}

// Delete removes a session. Unknown and empty ids are not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return apperrors.AsNetwork(fmt.Errorf("redis del: %w", err), "delete session")
	}
	return nil
}

// List returns every live session. It walks the key space with SCAN and
// fetches documents a batch at a time, so it belongs in operator tooling,
// not on request paths. Undecodable records are skipped.
func (s *SessionStore) List(ctx context.Context) ([]domainauth.BrowserSession, error) {
	var (
		out  []domainauth.BrowserSession
		keys = make([]string, 0, listBatchSize)
	)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		docs, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return apperrors.AsNetwork(fmt.Errorf("redis mget: %w", err), "list sessions")
		}
		for _, d := range docs {
			raw, ok := d.(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			if sess, live, err := s.decode([]byte(raw)); err == nil && live {
				out = append(out, sess)
			}
		}
		keys = keys[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.prefix+"*", listBatchSize).Iterator()
	for iter.Next(ctx) {
		if !strings.HasPrefix(iter.Val(), s.prefix) {
			continue
		}
		keys = append(keys, iter.Val())
		if len(keys) == listBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.AsNetwork(fmt.Errorf("redis scan: %w", err), "list sessions")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
