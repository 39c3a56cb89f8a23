package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"stresscam/internal/monitor"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderKeyValues renders a two-column property table
func renderKeyValues(rows [][]string) string {
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderSummary(s monitor.Summary) string {
	rows := [][]string{
		{"Session", s.SessionID},
		{"Duration", (time.Duration(s.Duration * float64(time.Second))).Round(time.Second).String()},
		{"Frames captured", fmt.Sprintf("%d", s.FramesCaptured)},
		{"Frames classified", fmt.Sprintf("%d", s.Pipeline.ResultsPublished)},
		{"Frames dropped", fmt.Sprintf("%d", s.Pipeline.FramesDropped)},
		{"Classifier errors", fmt.Sprintf("%d", s.Pipeline.ClassifierErrors)},
		{"Face ratio", fmt.Sprintf("%.0f%%", s.FaceDetectedRatio*100)},
		{"Records logged", fmt.Sprintf("%d", s.RecordsLogged)},
		{"Stress (current)", fmt.Sprintf("%.1f %s", s.CurrentLevel, s.CurrentStatus)},
	}
	if s.Stress.Samples > 0 {
		rows = append(rows,
			[]string{"Stress (mean)", fmt.Sprintf("%.1f", s.Stress.Mean)},
			[]string{"Stress (range)", fmt.Sprintf("%.1f - %.1f", s.Stress.Min, s.Stress.Max)},
			[]string{"Trend", string(s.Stress.Direction)},
		)
	}
	out := renderKeyValues(rows)
	for _, a := range s.Alerts {
		out += fmt.Sprintf("\n[%s] %s: %s", a.Kind, a.Title, a.Message)
	}
	return out
}
