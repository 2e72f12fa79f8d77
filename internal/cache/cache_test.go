package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookline/hookline/internal/store"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type fakeStore struct {
	accounts     map[string]*store.Account
	destinations map[string][]store.Destination
	accountCalls int
	destCalls    int
	err          error
}

func (f *fakeStore) FindAccountByToken(_ context.Context, token string) (*store.Account, error) {
	f.accountCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[token], nil
}

func (f *fakeStore) ListDestinations(_ context.Context, accountID string) ([]store.Destination, error) {
	f.destCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.destinations[accountID], nil
}

func testAccount() *store.Account {
	return &store.Account{ID: "acc-1", Name: "acme", SecretToken: "tok-1"}
}

func TestAccountMissPopulatesThenHits(t *testing.T) {
	rdb := newFakeRedis()
	st := &fakeStore{accounts: map[string]*store.Account{"tok-1": testAccount()}}
	c := New(rdb, st, time.Hour)
	ctx := context.Background()

	a, err := c.FindAccountByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("FindAccountByToken() error = %v", err)
	}
	if a == nil || a.ID != "acc-1" {
		t.Fatalf("account = %+v", a)
	}
	if st.accountCalls != 1 {
		t.Fatalf("store calls = %d, want 1", st.accountCalls)
	}
	if rdb.ttls["account:token:tok-1"] != time.Hour {
		t.Errorf("cached TTL = %v, want 1h", rdb.ttls["account:token:tok-1"])
	}

	a, err = c.FindAccountByToken(ctx, "tok-1")
	if err != nil || a == nil || a.ID != "acc-1" {
		t.Fatalf("cached read = %+v, %v", a, err)
	}
	if a.SecretToken != "tok-1" {
		t.Errorf("cached account lost its secret token: %+v", a)
	}
	if st.accountCalls != 1 {
		t.Errorf("store calls = %d after cache hit, want still 1", st.accountCalls)
	}
}

func TestUnknownTokenNotCached(t *testing.T) {
	rdb := newFakeRedis()
	st := &fakeStore{accounts: map[string]*store.Account{}}
	c := New(rdb, st, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a, err := c.FindAccountByToken(ctx, "tok-missing")
		if err != nil || a != nil {
			t.Fatalf("lookup %d = %+v, %v; want nil, nil", i+1, a, err)
		}
	}
	if st.accountCalls != 2 {
		t.Errorf("store calls = %d, want 2 (misses are never cached)", st.accountCalls)
	}
	if len(rdb.values) != 0 {
		t.Errorf("cache holds %v for an unknown token", rdb.values)
	}
}

func TestAccountRedisOutageFallsThrough(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = rdb.getErr
	st := &fakeStore{accounts: map[string]*store.Account{"tok-1": testAccount()}}
	c := New(rdb, st, time.Hour)

	a, err := c.FindAccountByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("lookup failed on Redis outage: %v", err)
	}
	if a == nil || a.ID != "acc-1" {
		t.Fatalf("account = %+v", a)
	}
}

func TestDestinationsMissPopulatesThenHits(t *testing.T) {
	rdb := newFakeRedis()
	st := &fakeStore{destinations: map[string][]store.Destination{
		"acc-1": {{ID: "dst-1", AccountID: "acc-1", URL: "http://a/h", Method: "POST"}},
	}}
	c := New(rdb, st, time.Hour)
	ctx := context.Background()

	ds, err := c.ListDestinations(ctx, "acc-1")
	if err != nil || len(ds) != 1 {
		t.Fatalf("destinations = %v, %v", ds, err)
	}
	ds, err = c.ListDestinations(ctx, "acc-1")
	if err != nil || len(ds) != 1 || ds[0].ID != "dst-1" {
		t.Fatalf("cached destinations = %v, %v", ds, err)
	}
	if st.destCalls != 1 {
		t.Errorf("store calls = %d, want 1", st.destCalls)
	}
}

func TestEmptyDestinationsCached(t *testing.T) {
	rdb := newFakeRedis()
	// The store contract returns an empty non-nil slice for no rows.
	st := &fakeStore{destinations: map[string][]store.Destination{"acc-empty": {}}}
	c := New(rdb, st, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ds, err := c.ListDestinations(ctx, "acc-empty")
		if err != nil {
			t.Fatalf("lookup %d: %v", i+1, err)
		}
		if ds == nil || len(ds) != 0 {
			t.Fatalf("lookup %d = %v, want empty non-nil slice", i+1, ds)
		}
	}
	if st.destCalls != 1 {
		t.Errorf("store calls = %d, want 1 (empty sets are cached)", st.destCalls)
	}
}

func TestStoreErrorNotMasked(t *testing.T) {
	rdb := newFakeRedis()
	st := &fakeStore{err: errors.New("pg down")}
	c := New(rdb, st, time.Hour)
	ctx := context.Background()

	if _, err := c.FindAccountByToken(ctx, "tok-1"); err == nil {
		t.Error("account lookup error masked")
	}
	if _, err := c.ListDestinations(ctx, "acc-1"); err == nil {
		t.Error("destination lookup error masked")
	}
	if len(rdb.values) != 0 {
		t.Errorf("errors were cached: %v", rdb.values)
	}
}
