package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureDays(t *testing.T) []DailyConsumption {
	t.Helper()
	var days []DailyConsumption
	require.NoError(t, json.Unmarshal([]byte(historyFixture), &days))
	return days
}

func TestSummarizeDayNet(t *testing.T) {
	day := fixtureDays(t)[0]

	s := SummarizeDay(day)
	assert.InDelta(t, 4.5, s.Consumption.High, 1e-9)
	assert.InDelta(t, 2.25, s.Consumption.Low, 1e-9)
	assert.InDelta(t, 1.5, s.Injection.High, 1e-9)
	assert.InDelta(t, 0.25, s.Injection.Low, 1e-9)
	assert.InDelta(t, 6.75, s.Consumption.Total(), 1e-9)
	assert.InDelta(t, 1.75, s.Injection.Total(), 1e-9)
	assert.InDelta(t, s.Consumption.Total()-s.Injection.Total(), s.Net(), 1e-9)
	assert.InDelta(t, 5.0, s.Net(), 1e-9)
}

func TestSummarizeDaySkipsUnknownDirection(t *testing.T) {
	day := DailyConsumption{Date: "2025-01-01", Values: []Reading{
		{Direction: DirectionConsumption, Tariff: TariffHigh, Value: 1},
		{Direction: 9, Tariff: TariffHigh, Value: 100},
	}}
	s := SummarizeDay(day)
	assert.InDelta(t, 1.0, s.Net(), 1e-9)
	assert.Zero(t, s.Injection.Total())
}

func TestSummarize(t *testing.T) {
	p := Summarize(fixtureDays(t))

	assert.Equal(t, 2, p.Days)
	assert.InDelta(t, 9.75, p.Consumption.Total(), 1e-9)
	assert.InDelta(t, 7.75, p.Injection.Total(), 1e-9)
	assert.InDelta(t, 2.0, p.Net, 1e-9)
	// daily nets are 5 and -3
	assert.InDelta(t, 1.0, p.MeanDailyNet, 1e-9)
	assert.InDelta(t, 5.656854, p.StdDailyNet, 1e-6)
}

func TestSummarizeSingleDayHasNoSpread(t *testing.T) {
	p := Summarize(fixtureDays(t)[:1])
	assert.InDelta(t, 5.0, p.MeanDailyNet, 1e-9)
	assert.Zero(t, p.StdDailyNet)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, fixtureDays(t)))

	out := buf.String()
	assert.Contains(t, out, "Period: 2 days")
	assert.Contains(t, out, "Day 1: 2025-01-01T00:00:00+01:00")
	assert.Contains(t, out, "Consumption (High): 4.500 kWh")
	assert.Contains(t, out, "Injection (Low): 0.250 kWh")
	assert.Contains(t, out, "Net consumption: 5.000 kWh")
	assert.Contains(t, out, "Net consumption: -3.000 kWh")
	assert.Contains(t, out, "2-DAY SUMMARY")
	assert.Contains(t, out, "Net Consumption: 2.00 kWh")
	assert.Contains(t, out, "You consumed 2.00 kWh net from the grid")
}

func TestWriteReportNetProducer(t *testing.T) {
	days := fixtureDays(t)[1:]
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, days))
	assert.Contains(t, buf.String(), "You generated 3.00 kWh more than you consumed")
}

func TestWriteReportNoData(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, WriteReport(&buf, nil), ErrNoData)
	require.Zero(t, buf.Len())
}
