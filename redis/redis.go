// Package redis persists the session credential in Redis, for deployments
// where several client processes on one host share a login (kiosk setups).
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/connectedapp/connected-client/identity"
)

// Redis stores the credential record as a Redis hash.
type Redis struct {
	cli *redis.Client
	key string
}

// Connect connects to the Redis server and pings it to ensure the connection
// is working. The key namespaces the credential so several deployments can
// share one Redis; pass "" for the default.
func Connect(ctx context.Context, addr, key string) (*Redis, error) {
	if key == "" {
		key = "connected:credential"
	}
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{cli: cli, key: key}, nil
}

// A credential is the stored hash shape.
type credential struct {
	UserID string `redis:"user_id"`
	Token  string `redis:"token"`
}

// Load returns the stored credential. An absent key is an empty credential.
func (r *Redis) Load(ctx context.Context) (identity.Credential, error) {
	var c credential
	if err := r.cli.HGetAll(ctx, r.key).Scan(&c); err != nil {
		return identity.Credential{}, fmt.Errorf("hgetall: %w", err)
	}
	return identity.Credential{UserID: c.UserID, Token: c.Token}, nil
}

// Save overwrites the stored credential.
func (r *Redis) Save(ctx context.Context, c identity.Credential) error {
	err := r.cli.HSet(ctx, r.key, credential{
		UserID: c.UserID,
		Token:  c.Token,
	}).Err()
	if err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

// Clear removes the stored credential.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.cli.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
