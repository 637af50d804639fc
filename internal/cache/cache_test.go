package cache

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/kandev/discussord/internal/clock"
	"github.com/kandev/discussord/internal/storage"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

func TestCache_GetLoadsFromStoreOnMiss(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryPort()
	d := &v1.Discussion{Title: "t"}
	if err := store.CreateDiscussion(ctx, d); err != nil {
		t.Fatal(err)
	}

	c := New(store, clock.NewRegistry(), time.Hour, nil)
	loaded, err := c.Get(ctx, d.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != "t" {
		t.Fatalf("expected title t, got %q", loaded.Title)
	}
}

func TestCache_TTLEvictionCancelsTimer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		store := storage.NewMemoryPort()
		d := &v1.Discussion{Title: "t"}
		if err := store.CreateDiscussion(ctx, d); err != nil {
			t.Fatal(err)
		}
		timers := clock.NewRegistry()
		c := New(store, timers, 70*time.Minute, nil)

		if _, err := c.Get(ctx, d.ID, false); err != nil {
			t.Fatal(err)
		}
		timers.Schedule(d.ID, 2*time.Hour, func(string) {})

		c.Start(ctx, time.Minute)
		defer c.Stop()

		time.Sleep(71 * time.Minute)
		synctest.Wait()

		if timers.Has(d.ID) {
			t.Fatal("expected timer to be cancelled on cache eviction")
		}

		reloaded, err := c.Get(ctx, d.ID, false)
		if err != nil {
			t.Fatal(err)
		}
		if reloaded.Title != "t" {
			t.Fatalf("expected re-read to repopulate from store, got %q", reloaded.Title)
		}
	})
}
