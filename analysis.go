package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

var ErrNoData = errors.New("no consumption data")

// EnergySplit holds a total split by tariff.
type EnergySplit struct {
	High float64 `json:"high_kwh"`
	Low  float64 `json:"low_kwh"`
}

func (s EnergySplit) Total() float64 { return s.High + s.Low }

func (s *EnergySplit) add(t Tariff, v float64) {
	if t == TariffHigh {
		s.High += v
	} else {
		s.Low += v
	}
}

// DaySummary aggregates the readings of one day.
type DaySummary struct {
	Date        string      `json:"date"`
	Consumption EnergySplit `json:"consumption"`
	Injection   EnergySplit `json:"injection"`
}

// Net is consumption minus injection.
func (d DaySummary) Net() float64 {
	return d.Consumption.Total() - d.Injection.Total()
}

// PeriodSummary aggregates a whole window.
type PeriodSummary struct {
	Days         int         `json:"days"`
	Consumption  EnergySplit `json:"consumption"`
	Injection    EnergySplit `json:"injection"`
	Net          float64     `json:"net_kwh"`
	MeanDailyNet float64     `json:"mean_daily_net_kwh"`
	StdDailyNet  float64     `json:"std_daily_net_kwh"`
}

// SummarizeDay totals one day's readings. Readings with an unknown direction are skipped.
func SummarizeDay(day DailyConsumption) DaySummary {
	s := DaySummary{Date: day.Date}
	for _, r := range day.Values {
		switch r.Direction {
		case DirectionConsumption:
			s.Consumption.add(r.Tariff, r.Value)
		case DirectionInjection:
			s.Injection.add(r.Tariff, r.Value)
		}
	}
	return s
}

// Summarize totals all days of a window.
func Summarize(days []DailyConsumption) PeriodSummary {
	p := PeriodSummary{Days: len(days)}
	nets := make([]float64, 0, len(days))
	for _, d := range days {
		ds := SummarizeDay(d)
		p.Consumption.High += ds.Consumption.High
		p.Consumption.Low += ds.Consumption.Low
		p.Injection.High += ds.Injection.High
		p.Injection.Low += ds.Injection.Low
		nets = append(nets, ds.Net())
	}
	p.Net = p.Consumption.Total() - p.Injection.Total()
	if len(nets) > 0 {
		p.MeanDailyNet = stat.Mean(nets, nil)
	}
	if len(nets) > 1 {
		p.StdDailyNet = stat.StdDev(nets, nil)
	}
	return p
}

// WriteReport prints a per-day breakdown followed by the period summary.
func WriteReport(w io.Writer, days []DailyConsumption) error {
	if len(days) == 0 {
		return ErrNoData
	}
	rule := strings.Repeat("=", 50)
	var b strings.Builder
	fmt.Fprintf(&b, "CONSUMPTION ANALYSIS\n%s\nPeriod: %d days\n", rule, len(days))

	for i, day := range days {
		fmt.Fprintf(&b, "\nDay %d: %s\n", i+1, day.Date)
		for _, r := range day.Values {
			switch r.Direction {
			case DirectionConsumption, DirectionInjection:
				fmt.Fprintf(&b, "   %s (%s): %.3f kWh\n", r.Direction, r.Tariff, r.Value)
			}
		}
		s := SummarizeDay(day)
		fmt.Fprintf(&b, "   Total consumption: %.3f kWh\n", s.Consumption.Total())
		fmt.Fprintf(&b, "   Total injection: %.3f kWh\n", s.Injection.Total())
		fmt.Fprintf(&b, "   Net consumption: %.3f kWh\n", s.Net())
	}

	p := Summarize(days)
	fmt.Fprintf(&b, "\n%d-DAY SUMMARY\n%s\n", p.Days, rule)
	fmt.Fprintf(&b, "   Total Consumption: %.2f kWh\n", p.Consumption.Total())
	fmt.Fprintf(&b, "      High tariff: %.2f kWh\n", p.Consumption.High)
	fmt.Fprintf(&b, "      Low tariff: %.2f kWh\n", p.Consumption.Low)
	fmt.Fprintf(&b, "   Total Injection: %.2f kWh\n", p.Injection.Total())
	fmt.Fprintf(&b, "      High tariff: %.2f kWh\n", p.Injection.High)
	fmt.Fprintf(&b, "      Low tariff: %.2f kWh\n", p.Injection.Low)
	fmt.Fprintf(&b, "   Net Consumption: %.2f kWh\n", p.Net)
	fmt.Fprintf(&b, "   Daily net: mean %.2f kWh, std dev %.2f kWh\n", p.MeanDailyNet, p.StdDailyNet)
	if p.Net < 0 {
		fmt.Fprintf(&b, "   You generated %.2f kWh more than you consumed\n", math.Abs(p.Net))
	} else {
		fmt.Fprintf(&b, "   You consumed %.2f kWh net from the grid\n", p.Net)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
