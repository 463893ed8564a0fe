// Package processor wires configuration documents, merge, state persistence
// and the value host manager into one reloadable unit.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/internal/logging"
	"github.com/timzifer/valuehosts/internal/reload"
	"github.com/timzifer/valuehosts/manager"
	"github.com/timzifer/valuehosts/merge"
	"github.com/timzifer/valuehosts/services"
	"github.com/timzifer/valuehosts/statefile"
	"github.com/timzifer/valuehosts/telemetry"
	"github.com/timzifer/valuehosts/valuehost"
)

// Option configures the processor during construction.
type Option func(*settings) error

type settings struct {
	businessPath      string
	uiPath            string
	business          *config.Document
	ui                *config.Document
	logger            zerolog.Logger
	customLogger      bool
	telemetry         telemetry.Collector
	telemetryProvided bool
	statePath         string
	services          *services.Services
	mergeSetup        []func(*merge.ValueHostConfigMergeService) error
}

// Processor owns the manager built from the merged documents and rebuilds it
// when the documents change.
type Processor struct {
	mu sync.Mutex

	businessPath string
	uiPath       string
	statePath    string

	collector    telemetry.Collector
	customLogger bool
	baseLogger   zerolog.Logger
	services     *services.Services
	mergeSetup   []func(*merge.ValueHostConfigMergeService) error

	watcher *reload.Watcher
	current *runtimeState
	closed  bool
}

type runtimeState struct {
	business *config.Document
	ui       *config.Document
	merged   []*config.ValueHostConfig
	manager  *manager.Manager
	logger   zerolog.Logger
	cleanup  func()
}

// New loads the documents, merges the UI document into the business
// document, restores saved states and builds the manager.
func New(ctx context.Context, opts ...Option) (*Processor, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	proc := &Processor{
		businessPath: cfg.businessPath,
		uiPath:       cfg.uiPath,
		statePath:    cfg.statePath,
		collector:    cfg.telemetry,
		customLogger: cfg.customLogger,
		baseLogger:   cfg.logger,
		services:     cfg.services,
		mergeSetup:   cfg.mergeSetup,
	}

	business, ui := cfg.business, cfg.ui
	if business == nil {
		var err error
		if business, ui, err = proc.loadDocuments(); err != nil {
			return nil, err
		}
	}

	if !cfg.telemetryProvided {
		collector, err := newTelemetryCollector(business.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			collector = telemetry.Noop()
		}
		proc.collector = collector
	}

	var states []*valuehost.InstanceState
	if proc.statePath != "" {
		loaded, err := statefile.Load(proc.statePath)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		states = loaded
	}

	runtime, err := proc.buildRuntime(business, ui, states)
	if err != nil {
		return nil, err
	}
	proc.current = runtime

	if proc.businessPath != "" || proc.uiPath != "" {
		watcher, err := reload.NewWatcher(proc.businessPath, proc.uiPath)
		if err != nil {
			runtime.close()
			return nil, err
		}
		proc.watcher = watcher
	}
	runtime.logger.Info().Int("valueHosts", len(runtime.merged)).Msg("processor started")
	return proc, nil
}

func (p *Processor) loadDocuments() (*config.Document, *config.Document, error) {
	if p.businessPath == "" {
		return nil, nil, errors.New("business configuration path required")
	}
	business, err := config.Load(p.businessPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load business configuration: %w", err)
	}
	var ui *config.Document
	if p.uiPath != "" {
		if ui, err = config.Load(p.uiPath); err != nil {
			return nil, nil, fmt.Errorf("load ui configuration: %w", err)
		}
	}
	return business, ui, nil
}

func (p *Processor) buildRuntime(business, ui *config.Document, states []*valuehost.InstanceState) (*runtimeState, error) {
	logger := p.baseLogger
	cleanup := func() {}
	if !p.customLogger {
		configured, closer, err := logging.Setup(business.Logging)
		if err != nil {
			return nil, fmt.Errorf("setup logging: %w", err)
		}
		logger, cleanup = configured, closer
	}

	svc := p.services
	if svc == nil {
		svc = services.NewDefault(logger)
	}
	svc.SetService(services.LoggerService, logger)
	svc.SetService(services.TelemetryService, p.collector)
	localizer := services.NewMapLocalizer()
	localizer.RegisterAll(business.Localization)
	culture := business.Culture
	if ui != nil {
		localizer.RegisterAll(ui.Localization)
		if ui.Culture != "" {
			culture = ui.Culture
		}
	}
	svc.SetService(services.TextLocalizerService, localizer)
	if culture != "" {
		svc.SetService(services.CultureServiceName, services.NewCulture(culture))
	}

	mergeSvc := merge.NewValueHostConfigMergeService(svc, nil)
	for _, setup := range p.mergeSetup {
		if err := setup(mergeSvc); err != nil {
			cleanup()
			return nil, fmt.Errorf("merge setup: %w", err)
		}
	}

	merged := config.CloneAll(business.ValueHosts)
	if ui != nil {
		var err error
		if merged, err = mergeSvc.MergeCollections(ui.ValueHosts, merged); err != nil {
			cleanup()
			return nil, fmt.Errorf("merge configuration: %w", err)
		}
	}
	if err := config.Check(&config.Document{ValueHosts: merged}); err != nil {
		cleanup()
		return nil, fmt.Errorf("check merged configuration: %w", err)
	}

	mgr, err := manager.New(svc, merged, manager.WithSavedStates(states), manager.WithMergeService(mergeSvc))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("build value hosts: %w", err)
	}
	return &runtimeState{
		business: business,
		ui:       ui,
		merged:   merged,
		manager:  mgr,
		logger:   logger,
		cleanup:  cleanup,
	}, nil
}

func (r *runtimeState) close() {
	r.manager.Dispose()
	r.cleanup()
}

// Manager returns the current manager. It is replaced by every reload.
func (p *Processor) Manager() *manager.Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.manager
}

// MergedConfigs returns copies of the merged value host configs.
func (p *Processor) MergedConfigs() []*config.ValueHostConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return config.CloneAll(p.current.merged)
}

// Reload reloads the documents and rebuilds the manager, carrying over the
// instance states of the previous manager.
func (p *Processor) Reload(ctx context.Context) error {
	return p.reload(ctx, nil)
}

func (p *Processor) reload(ctx context.Context, files []string) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.current == nil {
		return errors.New("processor closed")
	}

	business, ui := p.current.business, p.current.ui
	if p.businessPath != "" {
		var err error
		if business, ui, err = p.loadDocuments(); err != nil {
			return err
		}
	}
	next, err := p.buildRuntime(business, ui, p.current.manager.States())
	if err != nil {
		return err
	}
	p.current.close()
	p.current = next

	if err := p.watcher.Update(p.businessPath, p.uiPath); err != nil {
		return err
	}
	for _, file := range files {
		p.collector.IncReload(file)
	}
	next.logger.Info().Strs("files", files).Int("valueHosts", len(next.merged)).Msg("configuration reloaded")
	return nil
}

// Watch polls the configuration documents every interval and reloads on
// change until ctx is cancelled. Failed reloads are logged and keep the
// current manager.
func (p *Processor) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.checkAndReload(ctx); err != nil {
				logger := p.logger()
				logger.Error().Err(err).Msg("configuration reload failed")
			}
		}
	}
}

// checkAndReload reloads when a watched document changed. It reports the
// changed files.
func (p *Processor) checkAndReload(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	watcher := p.watcher
	p.mu.Unlock()

	changed, err := watcher.Check()
	if err != nil || len(changed) == 0 {
		return nil, err
	}
	if err := p.reload(ctx, changed); err != nil {
		// a broken document is not retried until it changes again
		if updateErr := watcher.Update(p.businessPath, p.uiPath); updateErr != nil {
			logger := p.logger()
			logger.Warn().Err(updateErr).Msg("configuration watcher not updated")
		}
		return changed, err
	}
	return changed, nil
}

// logger returns a copy of the current logger. The runtime it belongs to may
// be replaced by a concurrent reload.
func (p *Processor) logger() zerolog.Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return p.baseLogger
	}
	return p.current.logger
}

// SaveState persists the instance states to the configured state path.
func (p *Processor) SaveState() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statePath == "" {
		return errors.New("state path not configured")
	}
	if p.current == nil {
		return errors.New("processor closed")
	}
	if err := statefile.Save(p.statePath, p.current.manager.States()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close disposes the manager and releases the logging resources.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.current != nil {
		p.current.close()
		p.current = nil
	}
}
