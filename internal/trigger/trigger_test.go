package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/kandev/discussord/internal/bus"
	"github.com/kandev/discussord/internal/storage"
	"github.com/kandev/discussord/internal/turnstrategy"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

type noopCompleter struct{}

func (noopCompleter) CompleteDiscussion(context.Context, string) error { return nil }

func strategyFor(d *v1.Discussion) (turnstrategy.Strategy, error) {
	return turnstrategy.New(d.TurnStrategy)
}

func TestTrigger_RateLimitedAcrossTwoSweeps(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		store := storage.NewMemoryPort()
		d := &v1.Discussion{
			Title:        "t",
			Status:       v1.DiscussionStatusActive,
			TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyFreeForm},
			Settings:     v1.DefaultSettings(),
		}
		if err := store.CreateDiscussion(ctx, d); err != nil {
			t.Fatal(err)
		}
		agent := &v1.Participant{DiscussionID: d.ID, Type: v1.ParticipantTypeAgent, AgentID: "a1", Active: true}
		if err := store.CreateParticipant(ctx, agent); err != nil {
			t.Fatal(err)
		}

		memBus := bus.NewMemoryEventBus(nil)
		var publishCount atomic.Int32
		sub, err := memBus.Subscribe(TopicParticipate, func(context.Context, *bus.Event) error {
			publishCount.Add(1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		defer sub.Unsubscribe()

		cfg := DefaultConfig()
		cfg.SweepInterval = 1 * time.Second
		tr := New(cfg, store, memBus, noopCompleter{}, strategyFor, nil)

		tr.evaluate(ctx, d)
		tr.evaluate(ctx, d) // within 10s, should be rate-limited

		synctest.Wait()
		if got := publishCount.Load(); got != 1 {
			t.Fatalf("expected exactly one publish, got %d", got)
		}
	})
}

func TestTrigger_SaturationTransitionsToCompleted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryPort()
	d := &v1.Discussion{
		Title:        "t",
		Status:       v1.DiscussionStatusActive,
		TurnStrategy: v1.TurnStrategyConfig{Kind: v1.TurnStrategyFreeForm},
		Settings:     v1.Settings{MaxMessages: 1},
	}
	if err := store.CreateDiscussion(ctx, d); err != nil {
		t.Fatal(err)
	}
	d.State.MessageCount = 1
	if err := store.UpdateDiscussion(ctx, d); err != nil {
		t.Fatal(err)
	}

	var completed atomic.Bool
	completer := completerFunc(func(context.Context, string) error {
		completed.Store(true)
		return nil
	})

	memBus := bus.NewMemoryEventBus(nil)
	tr := New(DefaultConfig(), store, memBus, completer, strategyFor, nil)
	tr.evaluate(ctx, d)

	if !completed.Load() {
		t.Fatal("expected discussion to be completed on saturation")
	}
}

type completerFunc func(ctx context.Context, discussionID string) error

func (f completerFunc) CompleteDiscussion(ctx context.Context, discussionID string) error {
	return f(ctx, discussionID)
}
