package conditions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/timzifer/valuehosts/datatypes"
	"github.com/timzifer/valuehosts/errs"
)

// CreateFunc builds a condition of one registered type.
type CreateFunc func(cfg *Config, factory *Factory) (Condition, error)

// Factory creates conditions from their configs. Condition types are registered
// under a stable identifier, the built-in types are registered by NewFactory.
type Factory struct {
	mu       sync.RWMutex
	registry map[string]CreateFunc
	comparer func() (datatypes.Comparer, error)
}

var _ Creator = (*Factory)(nil)

// NewFactory returns a factory with every built-in condition type registered.
func NewFactory() *Factory {
	f := &Factory{registry: make(map[string]CreateFunc)}
	f.SetComparer(datatypes.NewRegistry())
	f.mustRegister(TypeRequireText, newRequireText)
	f.mustRegister(TypeDataTypeCheck, newDataTypeCheck)
	f.mustRegister(TypeRange, newRange)
	f.mustRegister(TypeRegExp, newRegExp)
	f.mustRegister(TypeExpression, newExpression)
	f.mustRegister(TypeAll, newComposite(TypeAll))
	f.mustRegister(TypeAny, newComposite(TypeAny))
	return f
}

// SetComparer replaces the comparer used by comparison conditions.
func (f *Factory) SetComparer(comparer datatypes.Comparer) {
	if comparer == nil {
		return
	}
	f.SetComparerSource(func() (datatypes.Comparer, error) { return comparer, nil })
}

// SetComparerSource makes comparison conditions look up their comparer when
// they are created, e.g. from a services container.
func (f *Factory) SetComparerSource(source func() (datatypes.Comparer, error)) {
	if source == nil {
		return
	}
	f.mu.Lock()
	f.comparer = source
	f.mu.Unlock()
}

// Comparer returns the comparer used by comparison conditions.
func (f *Factory) Comparer() (datatypes.Comparer, error) {
	f.mu.RLock()
	source := f.comparer
	f.mu.RUnlock()
	return source()
}

// Register adds a condition type. Registering a type twice is a coding error.
func (f *Factory) Register(conditionType string, create CreateFunc) error {
	conditionType = strings.TrimSpace(conditionType)
	if conditionType == "" {
		return errs.NewCodingError("condition type must not be empty")
	}
	if create == nil {
		return errs.NewCodingError("condition type %s: create function must not be nil", conditionType)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.registry[conditionType]; exists {
		return errs.NewCodingError("condition type %s already registered", conditionType)
	}
	f.registry[conditionType] = create
	return nil
}

func (f *Factory) mustRegister(conditionType string, create CreateFunc) {
	if err := f.Register(conditionType, create); err != nil {
		panic(err)
	}
}

// Create builds the condition described by cfg.
func (f *Factory) Create(cfg *Config) (Condition, error) {
	if cfg == nil {
		return nil, errs.NewCodingError("condition config must not be nil")
	}
	f.mu.RLock()
	create, ok := f.registry[cfg.ConditionType]
	f.mu.RUnlock()
	if !ok {
		return nil, errs.NewCodingError("condition type %q not registered", cfg.ConditionType)
	}
	cond, err := create(cfg, f)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", cfg.ConditionType, err)
	}
	return cond, nil
}

// ConditionTypes lists the registered condition types.
func (f *Factory) ConditionTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.registry))
	for id := range f.registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
