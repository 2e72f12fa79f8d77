// Package cache fronts account and destination lookups with Redis, bounding
// staleness to a configurable TTL. Both caches share one consistency domain:
// an entry is never served past the TTL window, and failed lookups are never
// cached so reprovisioned credentials resolve as soon as they exist.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/store"
)

const (
	accountKeyPrefix      = "account:token:"
	destinationsKeyPrefix = "destinations:"
)

// RedisCmds is the slice of the go-redis client the cache uses.
type RedisCmds interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Lookup is the uncached source of truth, served by the store.
type Lookup interface {
	FindAccountByToken(ctx context.Context, token string) (*store.Account, error)
	ListDestinations(ctx context.Context, accountID string) ([]store.Destination, error)
}

// Cache is a read-through layer over Lookup. A Redis outage degrades to
// direct store reads; it never fails a request on its own.
type Cache struct {
	rdb  RedisCmds
	next Lookup
	ttl  time.Duration
	log  *logging.Logger
}

func New(rdb RedisCmds, next Lookup, ttl time.Duration) *Cache {
	return &Cache{
		rdb:  rdb,
		next: next,
		ttl:  ttl,
		log:  logging.New("hookline-cache"),
	}
}

// FindAccountByToken resolves a credential token to its account, consulting
// Redis first. A successful resolution is cached for the TTL; a token that
// resolves to nothing is not cached.
func (c *Cache) FindAccountByToken(ctx context.Context, token string) (*store.Account, error) {
	key := accountKeyPrefix + token
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var a cachedAccount
		if jsonErr := json.Unmarshal([]byte(raw), &a); jsonErr == nil {
			return a.toAccount(), nil
		}
	} else if err != redis.Nil {
		c.log.Plain().WithError(err).Warn("redis get failed, falling through to store")
	}

	account, err := c.next.FindAccountByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	c.put(ctx, key, newCachedAccount(account))
	return account, nil
}

// ListDestinations returns the account's destination snapshot. Empty sets are
// cached too: "no destinations" is a valid result and obeys the same
// staleness bound as everything else in this consistency domain.
func (c *Cache) ListDestinations(ctx context.Context, accountID string) ([]store.Destination, error) {
	key := destinationsKeyPrefix + accountID
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var ds []store.Destination
		if jsonErr := json.Unmarshal([]byte(raw), &ds); jsonErr == nil {
			if ds == nil {
				ds = []store.Destination{}
			}
			return ds, nil
		}
	} else if err != redis.Nil {
		c.log.Plain().WithError(err).Warn("redis get failed, falling through to store")
	}

	ds, err := c.next.ListDestinations(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, ds)
	return ds, nil
}

func (c *Cache) put(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Plain().WithError(err).Warn("redis set failed")
	}
}

// cachedAccount keeps the secret token in the cached value; Account omits it
// from JSON everywhere else.
type cachedAccount struct {
	ID          string    `json:"account_id"`
	Name        string    `json:"account_name"`
	SecretToken string    `json:"app_secret_token"`
	CreatedAt   time.Time `json:"created_at"`
}

func newCachedAccount(a *store.Account) cachedAccount {
	return cachedAccount{ID: a.ID, Name: a.Name, SecretToken: a.SecretToken, CreatedAt: a.CreatedAt}
}

func (ca cachedAccount) toAccount() *store.Account {
	return &store.Account{ID: ca.ID, Name: ca.Name, SecretToken: ca.SecretToken, CreatedAt: ca.CreatedAt}
}
