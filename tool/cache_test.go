package tool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testCaches(t *testing.T) map[string]Cache {
	t.Helper()

	caches := map[string]Cache{"memory": NewMemoryCache()}

	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("parse REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		t.Cleanup(func() { _ = rdb.Close() })
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			t.Fatalf("ping redis: %v", err)
		}
		caches["redis"] = NewRedisCache(rdb, "aepilot:test:"+uuid.NewString()+":")
	}
	return caches
}

func TestCache_Contract(t *testing.T) {
	for name, cache := range testCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := Result{ID: "call_1", Name: "search_docs", Success: true, Payload: "hit", Duration: 3 * time.Millisecond}

			if _, ok, err := cache.Get(ctx, "s1", "fp"); err != nil || ok {
				t.Fatalf("Get() on empty cache = %v, %v", ok, err)
			}
			if err := cache.Set(ctx, "s1", "fp", want); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, ok, err := cache.Get(ctx, "s1", "fp")
			if err != nil || !ok {
				t.Fatalf("Get() = %v, %v", ok, err)
			}
			if got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}

			if _, ok, _ := cache.Get(ctx, "s2", "fp"); ok {
				t.Error("entry visible from another session")
			}

			if err := cache.Reset(ctx, "s1"); err != nil {
				t.Fatalf("Reset() error = %v", err)
			}
			if _, ok, _ := cache.Get(ctx, "s1", "fp"); ok {
				t.Error("entry survived Reset")
			}
		})
	}
}
