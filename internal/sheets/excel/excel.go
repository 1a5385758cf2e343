// Package excel writes semester reports to a local xlsx workbook.
package excel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	ports "kiptrack/internal/sheets"
)

// Writer appends report rows to one sheet of a workbook on disk, creating
// the file and the header row on first use.
type Writer struct {
	mu    sync.Mutex
	path  string
	sheet string
}

var _ ports.ReportWriter = (*Writer)(nil)

func New(path, sheet string) *Writer {
	if sheet == "" {
		sheet = "Laporan"
	}
	return &Writer{path: path, sheet: sheet}
}

func (w *Writer) Path() string { return w.path }

// WriteReport appends rows below the last used row and saves the workbook.
// The returned reference is the written range, e.g. "Laporan!A2:J4".
func (w *Writer) WriteReport(ctx context.Context, rows []ports.ReportRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	existing, err := f.GetRows(w.sheet)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", w.sheet, err)
	}
	next := len(existing) + 1
	if len(existing) == 0 {
		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(w.sheet, "A1", &header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		next = 2
	}

	start := next
	for _, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return "", err
		}
		values := r.Values()
		if err := f.SetSheetRow(w.sheet, cell, &values); err != nil {
			return "", fmt.Errorf("write row %d: %w", next, err)
		}
		next++
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return "", fmt.Errorf("save %s: %w", w.path, err)
	}

	end, err := excelize.CoordinatesToCellName(len(ports.Header), next-1)
	if err != nil {
		return "", err
	}
	ref := fmt.Sprintf("%s!A%d:%s", w.sheet, start, end)
	slog.InfoContext(ctx, "Report appended to workbook", "path", w.path, "rows", len(rows), "range", ref)
	return ref, nil
}

func (w *Writer) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", w.sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("name sheet %s: %w", w.sheet, err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", w.path, err)
	}
	idx, err := f.GetSheetIndex(w.sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	if idx == -1 {
		if _, err := f.NewSheet(w.sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", w.sheet, err)
		}
	}
	return f, nil
}
