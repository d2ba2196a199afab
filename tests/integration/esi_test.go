// Package integration exercises the full client flow against a real
// Redis instance and a mock ESI server.
package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/evetools/moonwatch/internal/testutil"
	"github.com/evetools/moonwatch/pkg/esi"
	"github.com/evetools/moonwatch/pkg/kvcache"
)

// setupRedis starts a Redis container for the test.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("cannot start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})

	t.Cleanup(func() {
		rdb.Close()
		container.Terminate(context.Background())
	})

	return rdb
}

func newClient(t *testing.T, rdb *redis.Client) *esi.Client {
	t.Helper()

	cfg := esi.DefaultConfig(rdb, "moonwatch-integration/0.0.1 (test@example.com)")
	cfg.MaxAttempts = 3
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.Logger = zerolog.Nop()

	client, err := esi.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestConditionalFlowWithTTL(t *testing.T) {
	rdb := setupRedis(t)

	mock := testutil.NewMockESI()
	defer mock.Close()

	const body = `{"observer_id": 1034323745, "last_updated": "2026-08-01"}`
	mock.SetHandler("/observer", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag-obs"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"etag-obs"`)
		w.Header().Set("Expires", time.Now().Add(120*time.Second).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})

	client := newClient(t, rdb)
	ctx := context.Background()
	targetURL := mock.URL() + "/observer"

	first := client.Get(ctx, targetURL, nil, nil)
	if first.Status != http.StatusOK || !first.Ok() {
		t.Fatalf("first: status %d ok %v", first.Status, first.Ok())
	}

	// The cache TTL follows the Expires header, not the default
	// lifetime.
	identity := kvcache.Identity(targetURL, nil)
	ttl, err := rdb.TTL(ctx, "json:"+identity).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl < 115*time.Second || ttl > 121*time.Second {
		t.Errorf("json TTL = %v, want ~120s from Expires", ttl)
	}

	second := client.Get(ctx, targetURL, nil, nil)
	if second.Status != http.StatusNotModified || !second.Ok() {
		t.Fatalf("second: status %d ok %v", second.Status, second.Ok())
	}
	if string(second.Data) != body {
		t.Errorf("second Data = %s, want cached body", second.Data)
	}
	if got := mock.RequestCount("/observer"); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
}

func TestPaginatedFlowSharedCache(t *testing.T) {
	rdb := setupRedis(t)

	mock := testutil.NewMockESI()
	defer mock.Close()

	mock.SetHandler("/ledger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Query().Get("page") {
		case "", "1":
			if r.Header.Get("If-None-Match") == `"etag-ledger"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("X-Pages", "2")
			w.Header().Set("ETag", `"etag-ledger"`)
			w.Header().Set("Expires", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"page": 1}]`))
		case "2":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"page": 2}]`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	client := newClient(t, rdb)
	ctx := context.Background()
	targetURL := mock.URL() + "/ledger"

	first := client.Pages(ctx, targetURL, "", nil)
	if first.Status != http.StatusOK || !first.Ok() {
		t.Fatalf("first: status %d ok %v", first.Status, first.Ok())
	}

	// Page count cached alongside body and etag.
	identity := kvcache.Identity(targetURL, nil)
	pages, err := rdb.Get(ctx, "pages:"+identity).Result()
	if err != nil {
		t.Fatalf("pages key: %v", err)
	}
	if pages != "2" {
		t.Errorf("pages key = %q, want 2", pages)
	}

	// The second run revalidates page one, reuses its cached body, and
	// still fans out for page two.
	second := client.Pages(ctx, targetURL, "", nil)
	if second.Status != http.StatusNotModified || !second.Ok() {
		t.Fatalf("second: status %d ok %v", second.Status, second.Ok())
	}
	if string(first.Data) != string(second.Data) {
		t.Errorf("runs differ: %s vs %s", first.Data, second.Data)
	}
}
