package excel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	ports "kiptrack/internal/sheets"
)

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "laporan.xlsx")
	w := New(path, "")
	ctx := context.Background()

	ref, err := w.WriteReport(ctx, []ports.ReportRow{
		{Period: "2025-JAN", StudentID: "s1", Name: "Ani", Jenjang: "S1", Semester: 6, Balance: 7500000},
		{Period: "2025-JAN", StudentID: "s2", Name: "Budi", Jenjang: "D3", Semester: 2, Balance: 0},
	})
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if ref != "Laporan!A2:J3" {
		t.Errorf("ref = %q, want Laporan!A2:J3", ref)
	}

	ref, err = w.WriteReport(ctx, []ports.ReportRow{{Period: "2025-JUL", StudentID: "s3"}})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if ref != "Laporan!A4:J4" {
		t.Errorf("ref = %q, want Laporan!A4:J4", ref)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Laporan")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0][0] != "Periode" || rows[1][1] != "s1" || rows[3][1] != "s3" {
		t.Errorf("unexpected rows: %v", rows)
	}
	if rows[1][5] != "7500000" || rows[1][6] != "Rp7.500.000" {
		t.Errorf("unexpected balance cells: %v", rows[1])
	}
}

func TestWriteReportEmpty(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.xlsx"), "Laporan")
	ref, err := w.WriteReport(context.Background(), nil)
	if err != nil || ref != "" {
		t.Fatalf("empty write: ref=%q err=%v", ref, err)
	}
}

func TestWriteReportCancelled(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.xlsx"), "Laporan")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.WriteReport(ctx, []ports.ReportRow{{StudentID: "a"}}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
