package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, "fd"), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

type registryFactory struct {
	name string
	make func(t *testing.T) (Registry, func())
}

func registryFactories() []registryFactory {
	return []registryFactory{
		{name: "redis", make: func(t *testing.T) (Registry, func()) {
			store, _, done := newRedisStoreTest(t)
			return store, done
		}},
		{name: "memory", make: func(t *testing.T) (Registry, func()) {
			return NewMemoryStore(), func() {}
		}},
	}
}

func TestRegistryPutGetCurrentToken(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			if _, err := reg.Get(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound before put, got %v", err)
			}

			rec := testRecord("u-1", "token-1", HashToken("refresh-1"))
			if err := reg.Put(ctx, "u-1", rec, time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := reg.Get(ctx, "u-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if *got != *rec {
				t.Fatalf("unexpected record %+v", got)
			}

			tok, err := reg.CurrentToken(ctx, "u-1")
			if err != nil || tok != "token-1" {
				t.Fatalf("CurrentToken = %q, %v", tok, err)
			}
		})
	}
}

func TestRegistryLastWriterWins(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			for i := 1; i <= 5; i++ {
				tok := fmt.Sprintf("token-%d", i)
				if err := reg.Put(ctx, "u-1", testRecord("u-1", tok, HashToken(tok)), time.Hour); err != nil {
					t.Fatalf("Put %d: %v", i, err)
				}
				current, err := reg.CurrentToken(ctx, "u-1")
				if err != nil {
					t.Fatalf("CurrentToken: %v", err)
				}
				if current != tok {
					t.Fatalf("after put %d current token is %q", i, current)
				}
			}
		})
	}
}

func TestRegistryInvalidateIdempotent(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			if err := reg.Put(ctx, "u-1", testRecord("u-1", "tok", HashToken("r")), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := reg.Invalidate(ctx, "u-1"); err != nil {
				t.Fatalf("first invalidate: %v", err)
			}
			if err := reg.Invalidate(ctx, "u-1"); err != nil {
				t.Fatalf("second invalidate: %v", err)
			}
			if _, err := reg.CurrentToken(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after invalidate, got %v", err)
			}
		})
	}
}

func TestRegistryRotate(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			next := testRecord("u-1", "token-2", HashToken("refresh-2"))
			if err := reg.Rotate(ctx, "u-1", HashToken("refresh-1"), next, time.Hour); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound rotating absent record, got %v", err)
			}

			if err := reg.Put(ctx, "u-1", testRecord("u-1", "token-1", HashToken("refresh-1")), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := reg.Rotate(ctx, "u-1", HashToken("other"), next, time.Hour); !errors.Is(err, ErrRefreshHashMismatch) {
				t.Fatalf("expected ErrRefreshHashMismatch, got %v", err)
			}
			if tok, _ := reg.CurrentToken(ctx, "u-1"); tok != "token-1" {
				t.Fatalf("mismatched rotate must not write, current=%q", tok)
			}

			if err := reg.Rotate(ctx, "u-1", HashToken("refresh-1"), next, time.Hour); err != nil {
				t.Fatalf("Rotate: %v", err)
			}
			got, err := reg.Get(ctx, "u-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.AccessToken != "token-2" || got.RefreshHash != HashToken("refresh-2") {
				t.Fatalf("unexpected rotated record %+v", got)
			}

			if err := reg.Rotate(ctx, "u-1", HashToken("refresh-1"), next, time.Hour); !errors.Is(err, ErrRefreshHashMismatch) {
				t.Fatalf("expected replayed rotate to fail, got %v", err)
			}
		})
	}
}

func TestRegistryRotateConcurrentSingleWinner(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			if err := reg.Put(ctx, "u-1", testRecord("u-1", "token-0", HashToken("refresh-0")), time.Hour); err != nil {
				t.Fatalf("Put: %v", err)
			}

			const workers = 16
			start := make(chan struct{})
			results := make(chan error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					tok := fmt.Sprintf("token-%d", i+1)
					results <- reg.Rotate(ctx, "u-1", HashToken("refresh-0"), testRecord("u-1", tok, HashToken("refresh-"+tok)), time.Hour)
				}(i)
			}
			close(start)
			wg.Wait()
			close(results)

			winners := 0
			for err := range results {
				switch {
				case err == nil:
					winners++
				case errors.Is(err, ErrRefreshHashMismatch):
				default:
					t.Fatalf("unexpected rotate error: %v", err)
				}
			}
			if winners != 1 {
				t.Fatalf("expected exactly one rotate winner, got %d", winners)
			}
		})
	}
}

func TestRegistryRejectsInvalidPut(t *testing.T) {
	for _, f := range registryFactories() {
		t.Run(f.name, func(t *testing.T) {
			reg, done := f.make(t)
			defer done()
			ctx := context.Background()

			if err := reg.Put(ctx, "u-1", testRecord("u-1", "tok", HashToken("r")), 0); err == nil {
				t.Fatal("expected zero ttl to be rejected")
			}
			if err := reg.Put(ctx, "", testRecord("", "tok", HashToken("r")), time.Hour); err == nil {
				t.Fatal("expected empty user id to be rejected")
			}
			if err := reg.Put(ctx, "u-1", nil, time.Hour); err == nil {
				t.Fatal("expected nil record to be rejected")
			}
		})
	}
}

func TestRedisStoreExpiresWithTTL(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, "u-1", testRecord("u-1", "tok", HashToken("r")), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestRedisStoreCorruptBlob(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := mr.Set("fd:session:u-1", "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(ctx, "u-1"); err == nil {
		t.Fatal("expected decode error for corrupt blob")
	}
	err := store.Rotate(ctx, "u-1", HashToken("r"), testRecord("u-1", "tok", HashToken("n")), time.Hour)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord from rotate, got %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisStore(rdb, "fd")
	mr.Close()

	err = store.Put(context.Background(), "u-1", testRecord("u-1", "tok", HashToken("r")), time.Hour)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Put(ctx, "u-1", testRecord("u-1", "tok", HashToken("r")), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.CurrentToken(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound at expiry, got %v", err)
	}
}
