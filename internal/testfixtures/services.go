package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/autoscaler-scheduler/internal/application"
	"github.com/example/autoscaler-scheduler/internal/persistence/memory"
)

// ServiceFactory builds services with deterministic identifiers and a
// controllable clock.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("guid")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// PolicyServiceDeps captures dependencies for constructing a policy service.
// Nil members are replaced with in-memory defaults.
type PolicyServiceDeps struct {
	Policies application.PolicyStore
	Triggers *FakeTriggerStore
	Config   application.PolicyServiceConfig
	Logger   *slog.Logger
}

// PolicyServiceHarness exposes the service with the collaborators it was
// built with.
type PolicyServiceHarness struct {
	Service  *application.PolicyService
	Policies application.PolicyStore
	Triggers *FakeTriggerStore
}

// NewPolicyService builds a policy service on the factory clock.
func (f *ServiceFactory) NewPolicyService(deps PolicyServiceDeps) PolicyServiceHarness {
	if deps.Policies == nil {
		deps.Policies = memory.New()
	}
	if deps.Triggers == nil {
		deps.Triggers = NewFakeTriggerStore(f.Clock)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	svc := application.NewPolicyService(
		deps.Policies,
		deps.Triggers,
		f.IDGenerator.NextFunc(),
		deps.Config,
		deps.Logger,
	)
	return PolicyServiceHarness{Service: svc, Policies: deps.Policies, Triggers: deps.Triggers}
}
