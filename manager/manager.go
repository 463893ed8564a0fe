// Package manager owns a set of value hosts, fans out their notifications and
// aggregates their validation.
package manager

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/merge"
	"github.com/timzifer/valuehosts/services"
	"github.com/timzifer/valuehosts/valuehost"
)

// StateChangedFunc observes committed instance states.
type StateChangedFunc func(vh valuehost.ValueHost, state *valuehost.InstanceState)

// ValueChangedFunc observes native value changes.
type ValueChangedFunc func(vh valuehost.ValueHost, oldValue interface{})

// Option customises a Manager.
type Option func(*Manager)

// WithSavedStates restores previously persisted instance states. States are
// matched by name and cleaned up against the current configs.
func WithSavedStates(states []*valuehost.InstanceState) Option {
	return func(m *Manager) {
		for _, state := range states {
			if state != nil && state.Name != "" {
				m.saved[state.Name] = state
			}
		}
	}
}

// WithFactory replaces the default value host factory.
func WithFactory(factory *valuehost.Factory) Option {
	return func(m *Manager) {
		if factory != nil {
			m.factory = factory
		}
	}
}

// WithMergeService replaces the merge service used by AddOrMergeValueHost.
func WithMergeService(svc *merge.ValueHostConfigMergeService) Option {
	return func(m *Manager) {
		if svc != nil {
			m.merger = svc
		}
	}
}

// Manager is the owner of value hosts. It is not safe for concurrent use.
type Manager struct {
	id       uuid.UUID
	services *services.Services
	owner    *valuehost.Owner
	factory  *valuehost.Factory
	merger   *merge.ValueHostConfigMergeService
	logger   zerolog.Logger

	order   []string
	configs map[string]*config.ValueHostConfig
	hosts   map[string]valuehost.ValueHost
	saved   map[string]*valuehost.InstanceState

	stateSubscribers []StateChangedFunc
	valueSubscribers []ValueChangedFunc
	disposed         bool
}

// New builds a value host for every config.
func New(svc *services.Services, configs []*config.ValueHostConfig, opts ...Option) (*Manager, error) {
	if svc == nil {
		svc = services.New()
	}
	m := &Manager{
		id:       uuid.New(),
		services: svc,
		configs:  make(map[string]*config.ValueHostConfig),
		hosts:    make(map[string]valuehost.ValueHost),
		saved:    make(map[string]*valuehost.InstanceState),
	}
	m.owner = valuehost.NewOwner(m)
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.factory == nil {
		m.factory = valuehost.NewFactory()
	}
	if m.merger == nil {
		m.merger = merge.NewValueHostConfigMergeService(svc, nil)
	}
	m.logger = svc.Logger().With().Str("manager", m.id.String()).Logger()

	for _, cfg := range configs {
		if _, err := m.AddValueHost(cfg, nil); err != nil {
			m.Dispose()
			return nil, err
		}
	}
	return m, nil
}

// ID identifies the manager instance in logs.
func (m *Manager) ID() string { return m.id.String() }

func (m *Manager) Services() *services.Services { return m.services }

// ValueOf resolves the value of another value host for conditions and
// calculations.
func (m *Manager) ValueOf(name string) (interface{}, bool) {
	vh, ok := m.GetValueHost(name)
	if !ok {
		return nil, false
	}
	return vh.GetValue(), true
}

func (m *Manager) GetValueHost(name string) (valuehost.ValueHost, bool) {
	vh, ok := m.hosts[name]
	return vh, ok
}

// ValueHosts returns the value hosts in creation order.
func (m *Manager) ValueHosts() []valuehost.ValueHost {
	out := make([]valuehost.ValueHost, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.hosts[name])
	}
	return out
}

// Configs returns copies of the configs in creation order.
func (m *Manager) Configs() []*config.ValueHostConfig {
	out := make([]*config.ValueHostConfig, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.configs[name].Clone())
	}
	return out
}

// Accessor returns a typed lookup facade.
func (m *Manager) Accessor() *valuehost.Accessor {
	return valuehost.NewAccessor(m.owner)
}

// OnInstanceStateChanged registers fn for every committed state.
func (m *Manager) OnInstanceStateChanged(fn StateChangedFunc) {
	if fn != nil {
		m.stateSubscribers = append(m.stateSubscribers, fn)
	}
}

// OnValueChanged registers fn for every native value change.
func (m *Manager) OnValueChanged(fn ValueChangedFunc) {
	if fn != nil {
		m.valueSubscribers = append(m.valueSubscribers, fn)
	}
}

func (m *Manager) NotifyValueHostInstanceStateChanged(vh valuehost.ValueHost, state *valuehost.InstanceState) {
	m.services.Telemetry().IncStateChanged(vh.GetName())
	for _, fn := range m.stateSubscribers {
		fn(vh, state)
	}
}

func (m *Manager) NotifyValueChanged(vh valuehost.ValueHost, oldValue interface{}) {
	m.services.Telemetry().IncValueChanged(vh.GetName())
	for _, fn := range m.valueSubscribers {
		fn(vh, oldValue)
	}
}

// AddValueHost creates a value host for cfg. A nil state restores a saved
// state of the same name, if any. Names must be unique.
func (m *Manager) AddValueHost(cfg *config.ValueHostConfig, state *valuehost.InstanceState) (valuehost.ValueHost, error) {
	if m.disposed {
		return nil, errs.NewCodingError("manager %s has been disposed", m.id)
	}
	if cfg == nil {
		return nil, errs.NewCodingError("value host config must not be nil")
	}
	if _, exists := m.hosts[cfg.Name]; exists {
		return nil, fmt.Errorf("value host %q already exists", cfg.Name)
	}
	if state == nil {
		state = m.saved[cfg.Name]
	}
	if state != nil {
		state = state.Clone()
		if err := m.factory.CleanupState(m.services, state, cfg); err != nil {
			return nil, err
		}
	}
	vh, err := m.factory.Create(m.owner, cfg, state)
	if err != nil {
		return nil, err
	}
	m.configs[cfg.Name] = cfg
	m.hosts[cfg.Name] = vh
	m.order = append(m.order, cfg.Name)
	delete(m.saved, cfg.Name)
	m.logger.Debug().Str("valueHost", cfg.Name).Str("valueHostType", string(vh.GetValueHostType())).Msg("value host added")
	return vh, nil
}

// AddOrMergeValueHost merges cfg into the config of an existing value host
// with the same identity and recreates that host, carrying over its state.
// Without a match the value host is added.
func (m *Manager) AddOrMergeValueHost(cfg *config.ValueHostConfig, state *valuehost.InstanceState) (valuehost.ValueHost, error) {
	if m.disposed {
		return nil, errs.NewCodingError("manager %s has been disposed", m.id)
	}
	if cfg == nil {
		return nil, errs.NewCodingError("value host config must not be nil")
	}
	destinations := make([]*config.ValueHostConfig, 0, len(m.order))
	for _, name := range m.order {
		destinations = append(destinations, m.configs[name])
	}
	existing := m.merger.IdentifyValueHostConflict(cfg, destinations)
	if existing == nil {
		return m.AddValueHost(cfg, state)
	}

	merged := existing.Clone()
	if err := m.merger.Merge(cfg, merged); err != nil {
		return nil, err
	}
	old := m.hosts[existing.Name]
	if state == nil {
		state = old.GetInstanceState()
	}
	state = state.Clone()
	if err := m.factory.CleanupState(m.services, state, merged); err != nil {
		return nil, err
	}
	vh, err := m.factory.Create(m.owner, merged, state)
	if err != nil {
		return nil, err
	}
	old.Dispose()
	m.configs[merged.Name] = merged
	m.hosts[merged.Name] = vh
	m.logger.Debug().Str("valueHost", merged.Name).Msg("value host merged")
	return vh, nil
}

// Result aggregates the validation of all value hosts.
type Result struct {
	Valid       bool
	IssuesFound []valuehost.IssueFound
}

// Validate validates every value host with validators.
func (m *Manager) Validate(opts *valuehost.ValidateOptions) *Result {
	result := &Result{Valid: true}
	for _, vh := range m.ValueHosts() {
		v, ok := valuehost.AsValidatorsHost(vh)
		if !ok {
			continue
		}
		r := v.Validate(opts)
		if r.Status == valuehost.StatusInvalid {
			result.Valid = false
		}
		result.IssuesFound = append(result.IssuesFound, r.IssuesFound...)
	}
	m.logger.Debug().Bool("valid", result.Valid).Int("issues", len(result.IssuesFound)).Msg("validated")
	return result
}

// IsValid reports whether no value host is invalid. It does not validate.
func (m *Manager) IsValid() bool {
	for _, vh := range m.ValueHosts() {
		if v, ok := valuehost.AsValidatorsHost(vh); ok && !v.IsValid() {
			return false
		}
	}
	return true
}

// IssuesFound collects the issues of the last validation of every value host.
func (m *Manager) IssuesFound() []valuehost.IssueFound {
	var out []valuehost.IssueFound
	for _, vh := range m.ValueHosts() {
		if v, ok := valuehost.AsValidatorsHost(vh); ok {
			out = append(out, v.GetIssuesFound()...)
		}
	}
	return out
}

// States returns copies of all instance states for persistence.
func (m *Manager) States() []*valuehost.InstanceState {
	out := make([]*valuehost.InstanceState, 0, len(m.order))
	for _, vh := range m.ValueHosts() {
		out = append(out, vh.GetInstanceState())
	}
	return out
}

// Dispose disposes every value host and detaches them from the manager.
func (m *Manager) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	for _, vh := range m.hosts {
		vh.Dispose()
	}
	m.owner.Release()
	m.hosts = make(map[string]valuehost.ValueHost)
	m.configs = make(map[string]*config.ValueHostConfig)
	m.order = nil
	m.stateSubscribers = nil
	m.valueSubscribers = nil
}
