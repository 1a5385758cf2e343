package sheets

import (
	"context"

	"kiptrack/internal/core"
)

// ReportRow is one student's line in a semester report.
type ReportRow struct {
	Period          string
	StudentID       string
	Name            string
	Jenjang         core.Jenjang
	Semester        int
	Balance         int64
	TotalSpent      int64
	TotalViolations int64
}

// Ports for outbound adapters.
type (
	ReportWriter interface {
		// WriteReport appends rows and returns a reference to the written range.
		WriteReport(ctx context.Context, rows []ReportRow) (ref string, err error)
	}

	// AllowanceReader loads the nominal allowance tables maintained outside
	// the store.
	AllowanceReader interface {
		ReadAllowances(ctx context.Context) (map[core.ProgramCategory]core.AllowanceTable, error)
	}
)

// Header is the column layout of report rows.
var Header = []string{
	"Periode", "ID", "Nama", "Jenjang", "Semester",
	"Saldo", "Saldo (Rp)", "Terbilang", "Total Pengeluaran", "Pelanggaran",
}

// Values renders r in Header order.
func (r ReportRow) Values() []any {
	return []any{
		r.Period,
		r.StudentID,
		r.Name,
		string(r.Jenjang),
		r.Semester,
		r.Balance,
		core.FormatRupiah(r.Balance),
		core.Terbilang(r.Balance) + " rupiah",
		r.TotalSpent,
		r.TotalViolations,
	}
}
