package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

var csvHeader = []string{
	"Date",
	"End_Date",
	"Type",
	"Tariff",
	"Value_kWh",
	"Status",
}

// Helper function to format a reading value without losing precision
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSV writes one row per reading.
func writeCSV(w io.Writer, days []DailyConsumption) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, day := range days {
		for _, r := range day.Values {
			record := []string{
				day.Date,
				day.EndDate,
				r.Direction.String(),
				r.Tariff.String(),
				formatValue(r.Value),
				strconv.Itoa(r.Status),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// CSVExporter writes the readings to a CSV file.
type CSVExporter struct {
	Path string
}

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Export(_ context.Context, c *Consumption) error {
	file, err := os.Create(e.Path)
	if err != nil {
		return err
	}
	if err := writeCSV(file, c.Days); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", e.Path, err)
	}
	return file.Close()
}

func (e *CSVExporter) Close() error { return nil }
