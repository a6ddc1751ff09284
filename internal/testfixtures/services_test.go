package testfixtures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

func TestServiceFactoryNewPolicyService(t *testing.T) {
	t.Parallel()

	factory := NewServiceFactory()
	h := factory.NewPolicyService(PolicyServiceDeps{})

	result, err := h.Service.Apply(context.Background(), NewPolicy("app-1"))
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Record.GUID != "guid-1" {
		t.Fatalf("expected generated GUID guid-1, got %q", result.Record.GUID)
	}
	if !result.Record.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), result.Record.CreatedAt)
	}
	if got := h.Triggers.Names("app-1"); len(got) != 2 {
		t.Fatalf("expected an activate and a deactivate trigger, got %v", got)
	}
}

func TestFakeTriggerStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewFakeTriggerStore(nil)
	failure := errors.New("store down")
	store.RegisterFunc = FailAfter(1, failure)

	descriptors := TriggerRecords(NewPolicyRecord(NewPolicy("app-1",
		WithSchedules([]schedule.SpecificSchedule{Specific("2030-01-01T10:00", "2030-01-01T12:00")}, nil),
	)))
	if _, err := store.Register(ctx, descriptors[0].Descriptor); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := store.Register(ctx, descriptors[1].Descriptor); !errors.Is(err, failure) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if got := store.Names("app-1"); len(got) != 1 || got[0] != "specific-0-activate" {
		t.Fatalf("unexpected registrations %v", got)
	}

	if err := store.DeregisterAll(ctx, "app-1"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	calls := store.Calls()
	want := []string{
		"register app-1 specific-0-activate",
		"register app-1 specific-0-deactivate",
		"deregister app-1",
	}
	if len(calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, calls)
		}
	}
	if len(store.Registered("app-1")) != 0 {
		t.Fatalf("expected app-1 to be cleared")
	}
}

func TestFakeTriggerStoreBlocksUntilDeadline(t *testing.T) {
	t.Parallel()

	store := NewFakeTriggerStore(nil)
	store.RegisterFunc = BlockUntilDone()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	d := TriggerRecords(NewPolicyRecord(NewPolicy("app-1")))[0].Descriptor
	if _, err := store.Register(ctx, d); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
