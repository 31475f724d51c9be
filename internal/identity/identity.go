// Package identity issues sessions and resolves bearer tokens to the stable
// principal id that namespaces all store access. Sessions live in Redis;
// a custom credential always maps to the same principal, so exchanging it
// again recovers the same namespace.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pyoush/e-commerce-hooks-store/internal/redisx"
)

var (
	ErrUnknownSession  = errors.New("unknown session")
	ErrEmptyCredential = errors.New("empty credential")
)

type Session struct {
	Token     string `json:"token"`
	Principal string `json:"principal"`
}

type Provider struct {
	Redis *redis.Client
}

// IssueAnonymous mints a fresh principal with a fresh session token.
func (p *Provider) IssueAnonymous(ctx context.Context) (Session, error) {
	return p.newSession(ctx, uuid.NewString())
}

// Exchange maps a caller-supplied credential to its principal, creating the
// principal on first exchange, and returns a new session for it.
func (p *Provider) Exchange(ctx context.Context, credential string) (Session, error) {
	if credential == "" {
		return Session{}, ErrEmptyCredential
	}
	key := fmt.Sprintf(redisx.KeyCredential, hashCredential(credential))
	principal := uuid.NewString()
	created, err := p.Redis.SetNX(ctx, key, principal, 0).Result()
	if err != nil {
		return Session{}, fmt.Errorf("credential exchange: %w", err)
	}
	if !created {
		principal, err = p.Redis.Get(ctx, key).Result()
		if err != nil {
			return Session{}, fmt.Errorf("credential exchange: %w", err)
		}
	}
	return p.newSession(ctx, principal)
}

// Resolve returns the principal for a session token.
func (p *Provider) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnknownSession
	}
	principal, err := p.Redis.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownSession
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return principal, nil
}

func (p *Provider) newSession(ctx context.Context, principal string) (Session, error) {
	s := Session{Token: uuid.NewString(), Principal: principal}
	err := p.Redis.Set(ctx, fmt.Sprintf(redisx.KeySession, s.Token), principal, redisx.TTLSession).Err()
	if err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

func hashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
