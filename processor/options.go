package processor

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/merge"
	"github.com/timzifer/valuehosts/services"
	"github.com/timzifer/valuehosts/telemetry"
)

// WithBusinessConfigPath loads the business document from path. It is the
// merge destination.
func WithBusinessConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.businessPath = strings.TrimSpace(path)
		return nil
	}
}

// WithUIConfigPath loads the UI document from path. It is merged into the
// business document.
func WithUIConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.uiPath = strings.TrimSpace(path)
		return nil
	}
}

// WithDocuments supplies already loaded documents. ui may be nil.
func WithDocuments(business, ui *config.Document) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if business == nil {
			return errors.New("business document must not be nil")
		}
		cfg.business = business
		cfg.ui = ui
		return nil
	}
}

// WithLogger provides a custom logger instance instead of the logging section
// of the business document.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithTelemetry overrides the telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}

// WithStatePath restores instance states from path and enables SaveState.
func WithStatePath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.statePath = strings.TrimSpace(path)
		return nil
	}
}

// WithServices supplies the services container. The processor registers its
// logger, telemetry, culture and localizer into it.
func WithServices(svc *services.Services) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.services = svc
		return nil
	}
}

// WithMergeSetup customises the merge rules before the documents are merged.
// It runs once per merge service, that is on every build and reload.
func WithMergeSetup(setup func(*merge.ValueHostConfigMergeService) error) Option {
	return func(cfg *settings) error {
		if cfg == nil || setup == nil {
			return nil
		}
		cfg.mergeSetup = append(cfg.mergeSetup, setup)
		return nil
	}
}
