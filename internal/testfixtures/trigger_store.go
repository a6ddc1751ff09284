package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// FakeTriggerStore is a recording trigger.Store. Triggers never fire; tests
// inspect what is registered and inject failures through the hooks.
type FakeTriggerStore struct {
	Clock *Clock

	// RegisterFunc, when set, runs before a descriptor is recorded. A
	// non-nil error rejects the descriptor.
	RegisterFunc func(ctx context.Context, d trigger.Descriptor) error
	// DeregisterAllFunc, when set, runs before an application is cleared.
	DeregisterAllFunc func(ctx context.Context, appID string) error

	mu         sync.Mutex
	registered map[string]map[trigger.Handle]trigger.Descriptor
	calls      []string
	counter    int
}

// NewFakeTriggerStore returns an empty store reading time from clock. A nil
// clock starts at ReferenceTime.
func NewFakeTriggerStore(clock *Clock) *FakeTriggerStore {
	if clock == nil {
		clock = NewClock(time.Time{})
	}
	return &FakeTriggerStore{
		Clock:      clock,
		registered: make(map[string]map[trigger.Handle]trigger.Descriptor),
	}
}

// Register implements trigger.Store.
func (f *FakeTriggerStore) Register(ctx context.Context, d trigger.Descriptor) (trigger.Handle, error) {
	f.record("register " + d.AppID + " " + d.Name())
	if f.RegisterFunc != nil {
		if err := f.RegisterFunc(ctx, d); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := d.Validate(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	handle := trigger.Handle(fmt.Sprintf("fake-%d", f.counter))
	if f.registered[d.AppID] == nil {
		f.registered[d.AppID] = make(map[trigger.Handle]trigger.Descriptor)
	}
	f.registered[d.AppID][handle] = d.Clone()
	return handle, nil
}

// DeregisterAll implements trigger.Store.
func (f *FakeTriggerStore) DeregisterAll(ctx context.Context, appID string) error {
	f.record("deregister " + appID)
	if f.DeregisterAllFunc != nil {
		if err := f.DeregisterAllFunc(ctx, appID); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, appID)
	return nil
}

// Now implements trigger.Store.
func (f *FakeTriggerStore) Now(loc *time.Location) time.Time {
	return f.Clock.In(loc)
}

// Registered returns the descriptors registered for appID ordered by name.
func (f *FakeTriggerStore) Registered(appID string) []trigger.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]trigger.Descriptor, 0, len(f.registered[appID]))
	for _, d := range f.registered[appID] {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the names of the descriptors registered for appID, sorted.
func (f *FakeTriggerStore) Names(appID string) []string {
	registered := f.Registered(appID)
	out := make([]string, 0, len(registered))
	for _, d := range registered {
		out = append(out, d.Name())
	}
	return out
}

// Calls returns every call in order, as "register <app> <trigger>" or
// "deregister <app>".
func (f *FakeTriggerStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ResetCalls forgets recorded calls.
func (f *FakeTriggerStore) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *FakeTriggerStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// FailAfter returns a RegisterFunc that accepts n registrations and rejects
// every later one with err.
func FailAfter(n int, err error) func(context.Context, trigger.Descriptor) error {
	var mu sync.Mutex
	seen := 0
	return func(context.Context, trigger.Descriptor) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen > n {
			return err
		}
		return nil
	}
}

// BlockUntilDone returns a RegisterFunc that waits for the caller's context
// to end, simulating an unresponsive store.
func BlockUntilDone() func(context.Context, trigger.Descriptor) error {
	return func(ctx context.Context, _ trigger.Descriptor) error {
		<-ctx.Done()
		return ctx.Err()
	}
}
