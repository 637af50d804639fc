package clock

import (
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"
)

func TestRegistry_ScheduleFires(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := NewRegistry()
		var fired atomic.Bool
		r.Schedule("d1", 100*time.Millisecond, func(id string) {
			if id != "d1" {
				t.Errorf("unexpected discussion id %q", id)
			}
			fired.Store(true)
		})

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		if !fired.Load() {
			t.Fatal("expected callback to fire")
		}
		if r.Has("d1") {
			t.Fatal("timer should be cleared after firing")
		}
	})
}

func TestRegistry_ScheduleReplacesExisting(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r := NewRegistry()
		var firstFired, secondFired atomic.Bool

		r.Schedule("d1", 50*time.Millisecond, func(string) { firstFired.Store(true) })
		r.Schedule("d1", 200*time.Millisecond, func(string) { secondFired.Store(true) })

		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		if firstFired.Load() {
			t.Fatal("first timer should have been cancelled")
		}

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()
		if !secondFired.Load() {
			t.Fatal("second timer should have fired")
		}
	})
}

func TestRegistry_CancelIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Cancel("does-not-exist")
	r.Cancel("does-not-exist")

	r.Schedule("d1", time.Hour, func(string) {})
	r.Cancel("d1")
	r.Cancel("d1")
	if r.Has("d1") {
		t.Fatal("expected timer to be gone after cancel")
	}
}
