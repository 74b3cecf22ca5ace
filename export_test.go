package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureConsumption(t *testing.T) *Consumption {
	t.Helper()
	return &Consumption{
		EAN:         "541448800000000000",
		MeterSerial: "1SAG1100000000",
		Window:      DaysBack(time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), 1),
		Days:        fixtureDays(t),
		Raw:         json.RawMessage(historyFixture),
		RetrievedAt: time.Date(2025, 1, 3, 6, 0, 0, 0, time.UTC),
		RunID:       "run-1",
	}
}

type recordingExporter struct {
	name     string
	err      error
	closeErr error
	calls    *[]string
}

func (r *recordingExporter) Name() string { return r.name }

func (r *recordingExporter) Export(context.Context, *Consumption) error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

func (r *recordingExporter) Close() error {
	*r.calls = append(*r.calls, "close "+r.name)
	return r.closeErr
}

func TestMultiExporterOrder(t *testing.T) {
	var calls []string
	m := NewMultiExporter(NopLogger{},
		&recordingExporter{name: "a", calls: &calls},
		&recordingExporter{name: "b", calls: &calls},
	)
	require.NoError(t, m.Export(context.Background(), fixtureConsumption(t)))
	require.NoError(t, m.Close())
	require.Equal(t, []string{"a", "b", "close a", "close b"}, calls)
}

func TestMultiExporterStopsAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("disk full")
	m := NewMultiExporter(NopLogger{},
		&recordingExporter{name: "a", err: boom, calls: &calls},
		&recordingExporter{name: "b", calls: &calls},
	)
	err := m.Export(context.Background(), fixtureConsumption(t))
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "a export: disk full")
	require.Equal(t, []string{"a"}, calls)
}

func TestMultiExporterCloseJoinsErrors(t *testing.T) {
	var calls []string
	m := NewMultiExporter(NopLogger{},
		&recordingExporter{name: "a", closeErr: errors.New("x"), calls: &calls},
		&recordingExporter{name: "b", closeErr: errors.New("y"), calls: &calls},
	)
	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: x")
	assert.Contains(t, err.Error(), "b: y")
}

func TestJSONExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	e := &JSONExporter{Path: path}
	c := fixtureConsumption(t)
	c.Raw = json.RawMessage(`[{"d":"2025-01-01","v":[]}]`)

	require.NoError(t, e.Export(context.Background(), c))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[\n  {\n    \"d\": \"2025-01-01\",\n    \"v\": []\n  }\n]\n", string(data))
}

func TestJSONExporterInvalidBody(t *testing.T) {
	e := &JSONExporter{Path: filepath.Join(t.TempDir(), "data.json")}
	c := fixtureConsumption(t)
	c.Raw = json.RawMessage(`{`)
	require.Error(t, e.Export(context.Background(), c))
}

func TestNewExporters(t *testing.T) {
	dir := t.TempDir()
	cfg := ExportConfig{
		JSON:         filepath.Join(dir, "data.json"),
		CSV:          filepath.Join(dir, "data.csv"),
		SQLite:       filepath.Join(dir, "data.db"),
		Parquet:      filepath.Join(dir, "data.parquet"),
		PromTextfile: filepath.Join(dir, "fluvius.prom"),
	}
	cfg.SetDefaults()

	m, err := NewExporters(cfg, NopLogger{})
	require.NoError(t, err)
	require.Equal(t, 5, m.Len())

	require.NoError(t, m.Export(context.Background(), fixtureConsumption(t)))
	require.NoError(t, m.Close())

	for _, name := range []string{"data.json", "data.csv", "data.db", "data.parquet", "fluvius.prom"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestNewExportersJSONDisabled(t *testing.T) {
	cfg := ExportConfig{JSON: "disable"}
	cfg.SetDefaults()
	m, err := NewExporters(cfg, NopLogger{})
	require.NoError(t, err)
	require.Zero(t, m.Len())
}

func TestExportConfigDefaults(t *testing.T) {
	var cfg ExportConfig
	cfg.SetDefaults()
	assert.Equal(t, "fluvius_consumption_data.json", cfg.JSON)
	assert.Equal(t, "fluvius_reading", cfg.Influx.Measurement)
	assert.Equal(t, "fluvius/consumption", cfg.MQTT.Topic)
}
