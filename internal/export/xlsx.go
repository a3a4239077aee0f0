// Package export writes a session's filtered view to downloadable files.
package export

import (
	"io"

	"bikedash/internal/engine"
	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheet    = "Data"
	summarySheet = "Summary"
)

// WriteXLSX writes a workbook with the view's rows on one sheet and the
// selection and summary statistics on another.
func WriteXLSX(w io.Writer, view engine.View, sel models.Selection, summary models.SummaryStats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	page := view.Rows(0, view.Len())
	header := make([]interface{}, 0, len(page.Columns)+1)
	header = append(header, engine.DateColumn)
	for _, c := range page.Columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(dataSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, row := range page.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
		vals := make([]interface{}, 0, len(row.Values)+1)
		vals = append(vals, row.Date.String())
		for _, v := range row.Values {
			vals = append(vals, v)
		}
		if err := f.SetSheetRow(dataSheet, cell, &vals); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return errors.Wrap(err, "add summary sheet")
	}
	lines := [][]interface{}{
		{"x", sel.X},
		{"y", sel.Y},
		{"plot_type", string(sel.PlotType)},
		{"from", sel.Start.String()},
		{"to", sel.End.String()},
		{"column", summary.Column},
		{"count", summary.Count},
		{"status", string(summary.Status)},
		{"min", statCell(summary.Min)},
		{"max", statCell(summary.Max)},
		{"mean", statCell(summary.Mean)},
		{"median", statCell(summary.Median)},
		{"std_dev", statCell(summary.StdDev)},
	}
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrapf(err, "summary row %d", i)
		}
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return errors.Wrapf(err, "write summary row %d", i)
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func statCell(s models.Stat) interface{} {
	if v, ok := s.Value(); ok {
		return v
	}
	return "n/a"
}
