// Package report renders a migration run as an xlsx workbook with a summary
// sheet and one row per VM.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
)

const (
	SummarySheet = "Summary"
	VMsSheet     = "VMs"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var vmHeader = []any{"Ordinal", "VM", "Outcome", "Target ID", "Attempts", "Reason", "Started", "Finished"}

// FileName is the suggested download name for the report of r.
func FileName(r models.MigrationResult) string {
	return fmt.Sprintf("migration-%s.xlsx", r.ID)
}

// Write renders r into w.
func Write(w io.Writer, r models.MigrationResult) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Build returns the workbook. The caller closes it.
func Build(r models.MigrationResult) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(VMsSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := writeSummary(f, r, bold); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeVMs(f, r, bold); err != nil {
		_ = f.Close()
		return nil, err
	}

	return f, nil
}

func writeSummary(f *excelize.File, r models.MigrationResult, style int) error {
	status := "completed"
	switch {
	case r.Aborted:
		status = "aborted"
	case r.AllFailed():
		status = "failed"
	}

	rows := [][]any{
		{"Run", r.ID.String()},
		{"Source", string(r.Source)},
		{"Destination", string(r.Destination)},
		{"Status", status},
		{"Requested", r.TotalRequested},
		{"Succeeded", r.SucceededCount},
		{"Failed", r.FailedCount},
		{"Started", formatTime(r.StartedAt)},
		{"Finished", formatTime(r.FinishedAt)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), style); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "B", 40)
}

func writeVMs(f *excelize.File, r models.MigrationResult, style int) error {
	if err := f.SetSheetRow(VMsSheet, "A1", &vmHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(VMsSheet, "A1", "H1", style); err != nil {
		return err
	}

	for i, item := range r.Items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			item.Ordinal,
			item.VMName,
			string(item.Outcome),
			item.TargetID,
			item.Attempts,
			item.Reason,
			formatTime(item.StartedAt),
			formatTime(item.FinishedAt),
		}
		if err := f.SetSheetRow(VMsSheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(VMsSheet, "B", "H", 24)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
