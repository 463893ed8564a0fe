// Package services provides the dependency injection root shared by value
// hosts, merge services and the manager. Services are registered under
// case-insensitive names and resolved lazily.
package services

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/datatypes"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/telemetry"
)

// Well-known service names.
const (
	LoggerService             = "logger"
	TextLocalizerService      = "textLocalizer"
	CultureServiceName        = "culture"
	TelemetryService          = "telemetry"
	ConditionFactoryService   = "conditionFactory"
	DataTypeIdentifierService = "dataTypeIdentifier"
	DataTypeConverterService  = "dataTypeConverter"
	DataTypeComparerService   = "dataTypeComparer"
	DataTypeParserService     = "dataTypeParser"
	DataTypeFormatterService  = "dataTypeFormatter"
)

// Services is a case-insensitive, string keyed service registry.
type Services struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// Option configures a Services container.
type Option func(*Services)

// WithLogger registers the logger used by every consumer of the container.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Services) {
		s.setLocked(LoggerService, logger)
	}
}

// WithService registers an arbitrary service.
func WithService(name string, svc interface{}) Option {
	return func(s *Services) {
		s.setLocked(name, svc)
	}
}

// New creates an empty container. Services with a safe default are created on
// first access.
func New(opts ...Option) *Services {
	s := &Services{entries: make(map[string]interface{})}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewDefault creates a container with every built-in service registered.
func NewDefault(logger zerolog.Logger) *Services {
	registry := datatypes.NewRegistry()
	factory := conditions.NewFactory()
	s := New(
		WithLogger(logger),
		WithService(ConditionFactoryService, factory),
		WithService(DataTypeIdentifierService, registry),
		WithService(DataTypeConverterService, registry),
		WithService(DataTypeComparerService, registry),
		WithService(DataTypeParserService, registry),
		WithService(DataTypeFormatterService, registry),
	)
	factory.SetComparerSource(s.DataTypeComparer)
	return s
}

func normalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// GetService returns the service registered under name or nil.
func (s *Services) GetService(name string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[normalizeName(name)]
}

// SetService registers svc under name. A nil svc removes the registration.
func (s *Services) SetService(name string, svc interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(name, svc)
}

func (s *Services) setLocked(name string, svc interface{}) {
	key := normalizeName(name)
	if svc == nil {
		delete(s.entries, key)
		return
	}
	s.entries[key] = svc
}

// getOrCreate returns the registered service or stores and returns the
// default built by create.
func (s *Services) getOrCreate(name string, create func() interface{}) interface{} {
	key := normalizeName(name)
	s.mu.RLock()
	svc, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return svc
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.entries[key]; ok {
		return svc
	}
	svc = create()
	s.entries[key] = svc
	return svc
}

// Logger returns the registered logger. A disabled logger is used when none
// was registered.
func (s *Services) Logger() zerolog.Logger {
	switch l := s.GetService(LoggerService).(type) {
	case zerolog.Logger:
		return l
	case *zerolog.Logger:
		if l != nil {
			return *l
		}
	}
	return zerolog.Nop()
}

// TextLocalizer returns the registered localizer or a built-in empty one.
func (s *Services) TextLocalizer() TextLocalizer {
	svc := s.getOrCreate(TextLocalizerService, func() interface{} { return NewMapLocalizer() })
	if localizer, ok := svc.(TextLocalizer); ok {
		return localizer
	}
	return NewMapLocalizer()
}

// CultureService returns the registered culture service, defaulting to "en".
func (s *Services) CultureService() CultureService {
	svc := s.getOrCreate(CultureServiceName, func() interface{} { return NewCulture(DefaultCultureID) })
	if culture, ok := svc.(CultureService); ok {
		return culture
	}
	return NewCulture(DefaultCultureID)
}

// Telemetry returns the registered collector or a no-op collector.
func (s *Services) Telemetry() telemetry.Collector {
	svc := s.getOrCreate(TelemetryService, func() interface{} { return telemetry.Noop() })
	if collector, ok := svc.(telemetry.Collector); ok {
		return collector
	}
	return telemetry.Noop()
}

// ConditionFactory returns the registered condition factory. There is no safe
// default.
func (s *Services) ConditionFactory() (conditions.Creator, error) {
	return lookup[conditions.Creator](s, ConditionFactoryService)
}

// DataTypeIdentifier returns the registered identifier service.
func (s *Services) DataTypeIdentifier() (datatypes.Identifier, error) {
	return lookup[datatypes.Identifier](s, DataTypeIdentifierService)
}

// DataTypeConverter returns the registered converter service.
func (s *Services) DataTypeConverter() (datatypes.Converter, error) {
	return lookup[datatypes.Converter](s, DataTypeConverterService)
}

// DataTypeComparer returns the registered comparer service.
func (s *Services) DataTypeComparer() (datatypes.Comparer, error) {
	return lookup[datatypes.Comparer](s, DataTypeComparerService)
}

// DataTypeParser returns the registered parser, defaulting to the built-in
// registry.
func (s *Services) DataTypeParser() datatypes.Parser {
	svc := s.getOrCreate(DataTypeParserService, func() interface{} { return datatypes.NewRegistry() })
	if parser, ok := svc.(datatypes.Parser); ok {
		return parser
	}
	return datatypes.NewRegistry()
}

// DataTypeFormatter returns the registered formatter, defaulting to the
// built-in registry.
func (s *Services) DataTypeFormatter() datatypes.Formatter {
	svc := s.getOrCreate(DataTypeFormatterService, func() interface{} { return datatypes.NewRegistry() })
	if formatter, ok := svc.(datatypes.Formatter); ok {
		return formatter
	}
	return datatypes.NewRegistry()
}

func lookup[T any](s *Services, name string) (T, error) {
	var zero T
	svc := s.GetService(name)
	if svc == nil {
		return zero, errs.NewCodingError("service %s must be assigned before use", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, errs.NewCodingError("service %s has unexpected type %T", name, svc)
	}
	return typed, nil
}
