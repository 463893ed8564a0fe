// Package logging builds the zerolog logger described by the logging section
// of a business document.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/config"
)

const defaultApp = "valuehosts"

// Setup builds the logger for cfg on stdout. The returned func flushes and
// stops the Loki client, if any, and must be called once the logger is no
// longer used.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	return SetupWriter(cfg, os.Stdout)
}

// SetupWriter is Setup writing the local output to out.
func SetupWriter(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	var sinks []io.Writer
	switch strings.ToLower(cfg.Format) {
	case "text":
		sinks = append(sinks, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true})
	case "", "json":
		sinks = append(sinks, out)
	default:
		return zerolog.Logger{}, nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	stop := func() {}
	if cfg.Loki.Enabled {
		shipper, err := newLokiShipper(cfg.Loki)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		sinks = append(sinks, shipper)
		stop = shipper.client.Stop
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, stop, nil
}

// parseLevel defaults to info.
func parseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}

// lokiShipper pushes every log line as one Loki entry. The zerolog level of
// the line becomes the level label of its stream.
type lokiShipper struct {
	client *loki.Client
	labels model.LabelSet
}

func newLokiShipper(cfg config.LokiConfig) (*lokiShipper, error) {
	if cfg.URL == "" {
		return nil, errors.New("loki url is required")
	}
	clientCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create loki client: %w", err)
	}
	return &lokiShipper{client: client, labels: streamLabels(cfg.Labels)}, nil
}

// streamLabels converts the configured labels. Without an app label the
// stream is tagged app=valuehosts.
func streamLabels(configured map[string]string) model.LabelSet {
	labels := make(model.LabelSet, len(configured)+1)
	for name, value := range configured {
		labels[model.LabelName(name)] = model.LabelValue(value)
	}
	if _, ok := labels["app"]; !ok {
		labels["app"] = defaultApp
	}
	return labels
}

func (s *lokiShipper) Write(p []byte) (int, error) {
	return s.ship(s.labels, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (s *lokiShipper) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == zerolog.NoLevel {
		return s.ship(s.labels, p)
	}
	return s.ship(s.labels.Merge(model.LabelSet{"level": model.LabelValue(level.String())}), p)
}

func (s *lokiShipper) ship(labels model.LabelSet, p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	return len(p), s.client.Handle(labels, time.Now(), line)
}
