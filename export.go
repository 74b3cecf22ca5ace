package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Exporter receives the result of a successful fetch.
type Exporter interface {
	Name() string
	Export(ctx context.Context, c *Consumption) error
	Close() error
}

// ExportConfig enables exporters by naming their target.
type ExportConfig struct {
	JSON         string       `json:"json"`
	CSV          string       `json:"csv"`
	SQLite       string       `json:"sqlite"`
	Parquet      string       `json:"parquet"`
	PromTextfile string       `json:"prom_textfile"`
	Influx       InfluxConfig `json:"influx"`
	MQTT         MQTTConfig   `json:"mqtt"`
}

func (c *ExportConfig) SetDefaults() {
	if c.JSON == "" {
		c.JSON = "fluvius_consumption_data.json"
	}
	c.Influx.SetDefaults()
	c.MQTT.SetDefaults()
}

func (c *ExportConfig) Validate() error {
	if err := c.Influx.Validate(); err != nil {
		return err
	}
	return c.MQTT.Validate()
}

// NewExporters builds every exporter enabled in cfg.
func NewExporters(cfg ExportConfig, log Logger) (*MultiExporter, error) {
	m := &MultiExporter{log: log}
	if cfg.JSON != "" && cfg.JSON != "disable" {
		m.exporters = append(m.exporters, &JSONExporter{Path: cfg.JSON})
	}
	if cfg.CSV != "" {
		m.exporters = append(m.exporters, &CSVExporter{Path: cfg.CSV})
	}
	if cfg.SQLite != "" {
		e, err := NewSQLiteExporter(cfg.SQLite, log.With("exporter", "sqlite"))
		if err != nil {
			m.Close()
			return nil, err
		}
		m.exporters = append(m.exporters, e)
	}
	if cfg.Parquet != "" {
		m.exporters = append(m.exporters, &ParquetExporter{Path: cfg.Parquet})
	}
	if cfg.PromTextfile != "" {
		m.exporters = append(m.exporters, &PromTextfileExporter{Path: cfg.PromTextfile})
	}
	if cfg.Influx.URL != "" {
		m.exporters = append(m.exporters, NewInfluxExporter(cfg.Influx))
	}
	if cfg.MQTT.Broker != "" {
		m.exporters = append(m.exporters, NewMQTTExporter(cfg.MQTT, log.With("exporter", "mqtt")))
	}
	return m, nil
}

// MultiExporter fans out to several exporters in order.
type MultiExporter struct {
	exporters []Exporter
	log       Logger
}

func NewMultiExporter(log Logger, exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters, log: log}
}

func (m *MultiExporter) Name() string { return "multi" }

// Export stops at the first failing exporter.
func (m *MultiExporter) Export(ctx context.Context, c *Consumption) error {
	for _, e := range m.exporters {
		if err := e.Export(ctx, c); err != nil {
			return fmt.Errorf("%s export: %w", e.Name(), err)
		}
		m.log.Infof("Exported %d days to %s", len(c.Days), e.Name())
	}
	return nil
}

func (m *MultiExporter) Close() error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len reports how many exporters are enabled.
func (m *MultiExporter) Len() int { return len(m.exporters) }

// JSONExporter dumps the raw response body, indented.
type JSONExporter struct {
	Path string
}

func (e *JSONExporter) Name() string { return "json" }

func (e *JSONExporter) Export(_ context.Context, c *Consumption) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.Raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return os.WriteFile(e.Path, buf.Bytes(), 0o644)
}

func (e *JSONExporter) Close() error { return nil }
