package database

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRoleOptions(t *testing.T) {
	base, err := redis.ParseURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cache, pubsub := roleOptions(base)

	if cache.ReadTimeout != 500*time.Millisecond || cache.WriteTimeout != 500*time.Millisecond {
		t.Errorf("expected bounded cache timeouts, got read=%v write=%v", cache.ReadTimeout, cache.WriteTimeout)
	}
	if pubsub.ReadTimeout != -1 {
		t.Errorf("expected pubsub reads without timeout, got %v", pubsub.ReadTimeout)
	}

	for name, opt := range map[string]*redis.Options{"cache": cache, "pubsub": pubsub} {
		if opt.Addr != "localhost:6380" || opt.DB != 2 || opt.Password != "secret" {
			t.Errorf("%s: expected connection settings from the URL, got %s db=%d", name, opt.Addr, opt.DB)
		}
	}

	if base.ReadTimeout == -1 || base.ReadTimeout == 500*time.Millisecond {
		t.Errorf("base options were modified: %v", base.ReadTimeout)
	}
	if cache == pubsub {
		t.Error("expected distinct option values per role")
	}
}
