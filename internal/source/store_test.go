package source

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/businessweb01/dbmiddleware/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	if got := Key("B1"); got != "booking:B1" {
		t.Fatalf("Key() = %q, want booking:B1", got)
	}
	if got := IDFromKey("booking:B1"); got != "B1" {
		t.Fatalf("IDFromKey() = %q, want B1", got)
	}
	if got := IDFromKey("session:B1"); got != "" {
		t.Fatalf("IDFromKey() = %q, want empty for foreign key", got)
	}
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedisClient(t)
	store, err := NewStore(client, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	mr.Set("booking:B1", `{"status":"Completed","fare":120}`)

	b, err := store.Get(context.Background(), "B1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if b.ID != "B1" {
		t.Fatalf("ID = %q, want B1", b.ID)
	}
	if b.Status != domain.StatusCompleted {
		t.Fatalf("Status = %q, want Completed", b.Status)
	}
	if b.Fare == nil || *b.Fare != 120 {
		t.Fatalf("Fare = %v, want 120", b.Fare)
	}
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, client := newTestRedisClient(t)
	store, _ := NewStore(client, nil)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreGetMalformed(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedisClient(t)
	store, _ := NewStore(client, nil)

	mr.Set("booking:bad", `{broken`)

	_, err := store.Get(context.Background(), "bad")
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("Get() error = %v, want ErrInvalidRecord", err)
	}
}

func TestStoreScanIDs(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedisClient(t)
	store, _ := NewStore(client, nil)

	mr.Set("booking:B1", `{"status":"Pending"}`)
	mr.Set("booking:B2", `{"status":"Completed"}`)
	mr.Set("booking:B3", `{"status":"Cancelled"}`)
	mr.Set("driver:D1", `{}`)

	ids, err := store.ScanIDs(context.Background())
	if err != nil {
		t.Fatalf("ScanIDs() error = %v", err)
	}

	sort.Strings(ids)
	want := []string{"B1", "B2", "B3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedisClient(t)
	store, _ := NewStore(client, nil)

	mr.Set("booking:B1", `{"status":"Completed"}`)

	if err := store.Delete(context.Background(), "B1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if mr.Exists("booking:B1") {
		t.Fatal("booking:B1 still present after delete")
	}
}

func TestStorePing(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedisClient(t)
	store, _ := NewStore(client, nil)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after server shutdown")
	}
}
