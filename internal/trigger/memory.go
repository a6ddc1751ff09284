package trigger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxSleepCap = 60 * time.Second

// MemoryStore keeps triggers in a min-heap and fires them from a single run
// loop. Recurring triggers are re-armed after every firing until their
// validity window ends.
type MemoryStore struct {
	clock  func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	pending  pendingHeap
	handles  map[string]map[Handle]Descriptor
	fire     FireFunc
	wake     chan struct{}
	stopped  bool
	newToken func() string
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used by the run loop.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryStore constructs an empty store. Triggers fire only while Run is
// executing.
func NewMemoryStore(fire FireFunc, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		clock:    time.Now,
		logger:   slog.Default(),
		handles:  make(map[string]map[Handle]Descriptor),
		fire:     fire,
		wake:     make(chan struct{}, 1),
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFireFunc replaces the consumer of fired events.
func (s *MemoryStore) SetFireFunc(fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fire
}

// Register implements Store.
func (s *MemoryStore) Register(ctx context.Context, d Descriptor) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := d.Validate(); err != nil {
		return "", err
	}
	d = d.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStoreClosed
	}

	handle := Handle(s.newToken())
	if s.handles[d.AppID] == nil {
		s.handles[d.AppID] = make(map[Handle]Descriptor)
	}
	s.handles[d.AppID][handle] = d

	if at, ok := s.firstFiring(d); ok {
		heapPush(&s.pending, pending{handle: handle, desc: d, at: at})
		s.notify()
	}
	return handle, nil
}

// DeregisterAll implements Store. Unknown applications are not an error.
func (s *MemoryStore) DeregisterAll(ctx context.Context, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, appID)
	if heapRemoveApp(&s.pending, appID) > 0 {
		s.notify()
	}
	return nil
}

// Now implements Store.
func (s *MemoryStore) Now(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return s.clock().In(loc)
}

// Registered returns the descriptors currently registered for the
// application, ordered by name.
func (s *MemoryStore) Registered(appID string) []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Descriptor, 0, len(s.handles[appID]))
	for _, d := range s.handles[appID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Run fires due triggers until ctx is cancelled. It sleeps until the earliest
// trigger, never longer than maxSleepCap.
func (s *MemoryStore) Run(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending.Len() == 0 {
			return nil
		}
		dur := s.pending[0].at.Sub(s.clock())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			timerCh = resetTimer()
		case <-timerCh:
			events, fire := s.due()
			for _, ev := range events {
				if fire != nil {
					fire(ctx, ev)
				}
			}
			timerCh = resetTimer()
		}
	}
}

// due pops every trigger whose time has come and re-arms recurring ones.
func (s *MemoryStore) due() ([]Event, FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var events []Event
	for s.pending.Len() > 0 && !s.pending[0].at.After(now) {
		p := heapPop(&s.pending)
		events = append(events, Event{Handle: p.handle, Descriptor: p.desc, FiredAt: p.at})
		if !p.desc.Recurring() {
			delete(s.handles[p.desc.AppID], p.handle)
			continue
		}
		base := p.at
		if now.After(base) {
			base = now
		}
		if next, ok := p.desc.NextAfter(base); ok {
			heapPush(&s.pending, pending{handle: p.handle, desc: p.desc, at: next})
		} else {
			s.logger.Debug("recurring trigger expired", "app_id", p.desc.AppID, "trigger", p.desc.Name())
			delete(s.handles[p.desc.AppID], p.handle)
		}
	}
	return events, s.fire
}

// firstFiring picks the first firing of a newly registered descriptor.
// One-shot triggers in the past fire immediately.
func (s *MemoryStore) firstFiring(d Descriptor) (time.Time, bool) {
	if !d.Recurring() {
		return d.FireAt, true
	}
	if !d.NextFire.IsZero() {
		return d.NextFire, true
	}
	return d.NextAfter(s.clock())
}

func (s *MemoryStore) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
