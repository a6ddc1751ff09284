package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

func oneShot(appID string, index int, action Action, at time.Time) Descriptor {
	return Descriptor{
		AppID:    appID,
		Kind:     schedule.KindSpecific,
		Index:    index,
		Action:   action,
		Timezone: "UTC",
		FireAt:   at,
	}
}

func TestMemoryStoreRegistration(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	store := NewMemoryStore(nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	h1, err := store.Register(ctx, oneShot("app-1", 0, ActionActivate, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("register activate: %v", err)
	}
	h2, err := store.Register(ctx, oneShot("app-1", 0, ActionDeactivate, now.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("register deactivate: %v", err)
	}
	if h1 == h2 || h1 == "" {
		t.Fatalf("expected distinct handles, got %q and %q", h1, h2)
	}
	if _, err := store.Register(ctx, oneShot("app-2", 0, ActionActivate, now.Add(time.Hour))); err != nil {
		t.Fatalf("register other app: %v", err)
	}

	got := store.Registered("app-1")
	if len(got) != 2 || got[0].Action != ActionActivate || got[1].Action != ActionDeactivate {
		t.Fatalf("unexpected registrations %+v", got)
	}

	if err := store.DeregisterAll(ctx, "app-1"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if got := store.Registered("app-1"); len(got) != 0 {
		t.Fatalf("expected app-1 to be empty, got %+v", got)
	}
	if got := store.Registered("app-2"); len(got) != 1 {
		t.Fatalf("expected app-2 untouched, got %+v", got)
	}
	if err := store.DeregisterAll(ctx, "never-registered"); err != nil {
		t.Fatalf("expected deregistering unknown app to succeed, got %v", err)
	}

	if _, err := store.Register(ctx, Descriptor{AppID: "app-1"}); err == nil {
		t.Fatalf("expected invalid descriptor to be rejected")
	}
}

func TestMemoryStoreRunFiresDueTriggers(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	fired := make(chan Event, 4)
	store := NewMemoryStore(func(_ context.Context, ev Event) { fired <- ev }, WithClock(func() time.Time { return now }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	if _, err := store.Register(ctx, oneShot("app-1", 0, ActionActivate, now.Add(-time.Minute))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.Register(ctx, oneShot("app-1", 0, ActionDeactivate, now.Add(time.Hour))); err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case ev := <-fired:
		if ev.Descriptor.Action != ActionActivate {
			t.Fatalf("expected activate to fire first, got %s", ev.Descriptor.Action)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the due trigger")
	}

	select {
	case ev := <-fired:
		t.Fatalf("expected future trigger not to fire, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	got := store.Registered("app-1")
	if len(got) != 1 || got[0].Action != ActionDeactivate {
		t.Fatalf("expected only the pending deactivate to remain, got %+v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run loop did not stop")
	}
	if _, err := store.Register(context.Background(), oneShot("app-1", 1, ActionActivate, now)); err != ErrStoreClosed {
		t.Fatalf("expected ErrStoreClosed after stop, got %v", err)
	}
}

func TestMemoryStoreRearmsRecurringTriggers(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	store := NewMemoryStore(nil, WithClock(func() time.Time { return now }))

	d := Descriptor{
		AppID:      "app-1",
		Kind:       schedule.KindRecurring,
		Action:     ActionActivate,
		Timezone:   "UTC",
		Recurrence: &Recurrence{Hour: 15, Minute: 0, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}},
		NextFire:   now.Add(-4 * time.Minute),
	}
	if _, err := store.Register(context.Background(), d); err != nil {
		t.Fatalf("register: %v", err)
	}

	events, _ := store.due()
	if len(events) != 1 {
		t.Fatalf("expected one firing, got %d", len(events))
	}
	if store.pending.Len() != 1 {
		t.Fatalf("expected recurring trigger to be re-armed")
	}
	want := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)
	if !store.pending[0].at.Equal(want) {
		t.Fatalf("expected next firing %v, got %v", want, store.pending[0].at)
	}
	if got := store.Registered("app-1"); len(got) != 1 {
		t.Fatalf("expected recurring trigger to stay registered, got %+v", got)
	}
}

func TestMemoryStoreNow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	store := NewMemoryStore(nil, WithClock(func() time.Time { return now }))
	tokyo := time.FixedZone("JST", 9*60*60)
	got := store.Now(tokyo)
	if !got.Equal(now) || got.Location() != tokyo {
		t.Fatalf("expected %v in JST, got %v", now, got)
	}
}
