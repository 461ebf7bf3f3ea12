// Package report renders reconciliation results as xlsx workbooks for
// finance staff.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
)

const (
	SheetSummary  = "Summary"
	SheetOrphans  = "Orphans"
	SheetDrift    = "Drift"
	SheetFailures = "Failures"
)

// SweepReport is one reconciliation run. Result is nil for a dry run.
type SweepReport struct {
	GeneratedAt time.Time
	DryRun      bool
	Orphans     []models.PaymentTransaction
	Drift       []payment.ProjectionDrift
	Result      *payment.SweepResult
}

var (
	orphanHeader  = []interface{}{"Transaction ID", "Request ID", "External ID", "Amount", "Currency", "Completed At"}
	driftHeader   = []interface{}{"Request ID", "Request Number", "Stored", "Derived"}
	failureHeader = []interface{}{"Transaction ID", "Error"}
)

// Build renders the workbook. The caller closes the returned file.
func (r *SweepReport) Build() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetOrphans, SheetDrift, SheetFailures} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := r.writeSummary(f); err != nil {
		f.Close()
		return nil, err
	}

	rows := make([][]interface{}, 0, len(r.Orphans)+1)
	rows = append(rows, orphanHeader)
	for _, t := range r.Orphans {
		completed := ""
		if t.CompletedAt != nil {
			completed = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{t.ID, t.RequestID, t.ExternalTransactionID, t.Amount.StringFixed(2), t.Currency, completed})
	}
	if err := writeRows(f, SheetOrphans, rows); err != nil {
		f.Close()
		return nil, err
	}

	rows = [][]interface{}{driftHeader}
	for _, d := range r.Drift {
		rows = append(rows, []interface{}{d.RequestID, d.RequestNumber, d.Stored, d.Derived})
	}
	if err := writeRows(f, SheetDrift, rows); err != nil {
		f.Close()
		return nil, err
	}

	rows = [][]interface{}{failureHeader}
	if r.Result != nil {
		for _, fail := range r.Result.Failures {
			rows = append(rows, []interface{}{fail.TransactionID, fail.Error})
		}
	}
	if err := writeRows(f, SheetFailures, rows); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// WriteTo renders the workbook into w.
func (r *SweepReport) WriteTo(w io.Writer) (int64, error) {
	f, err := r.Build()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteTo(w)
}

// SaveAs renders the workbook to path.
func (r *SweepReport) SaveAs(path string) error {
	f, err := r.Build()
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func (r *SweepReport) writeSummary(f *excelize.File) error {
	mode := "repair"
	if r.DryRun {
		mode = "dry-run"
	}
	rows := [][]interface{}{
		{"Generated At", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Mode", mode},
		{"Orphan Transactions", len(r.Orphans)},
		{"Projection Drift", len(r.Drift)},
	}
	if r.Result != nil {
		rows = append(rows,
			[]interface{}{"Scanned", r.Result.Scanned},
			[]interface{}{"Receipts Created", r.Result.Created},
			[]interface{}{"Already Issued", r.Result.AlreadyIssued},
			[]interface{}{"Failed", r.Result.Failed},
			[]interface{}{"Projections Fixed", r.Result.ProjectionsFixed},
		)
	}
	return writeRows(f, SheetSummary, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
