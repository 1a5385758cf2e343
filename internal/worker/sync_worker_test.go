package worker

import (
	"context"
	"testing"
	"time"

	"kiptrack/internal/amqp"
	"kiptrack/internal/core"
	"kiptrack/internal/services"
	sheetmem "kiptrack/internal/sheets/memory"
	"kiptrack/internal/store/memory"
)

var july2025 = time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	reports *sheetmem.Store
	worker  *SyncWorker
}

func newFixture(t *testing.T, nominal map[core.ProgramCategory]core.AllowanceTable, now time.Time) fixture {
	t.Helper()
	st := memory.NewFromSeed(memory.Seed{
		Universities: []core.University{{ID: "ui", ClusterID: "1"}},
		Programs:     []core.Program{{ID: "informatika", Category: core.NonMedical}},
		Allowances:   map[core.ProgramCategory]core.AllowanceTable{core.NonMedical: {"1": 6600000}},
		Students: []core.Student{
			{ID: "s1", Name: "Siti", ProgramID: "informatika", UniversityID: "ui", Jenjang: core.S1,
				CurrentSemester: 2, GrantedAllowance: 6600000, CurrentBalance: 6600000, LastUpdatePeriod: "2025-JAN"},
			{ID: "s2", Name: "Budi", ProgramID: "informatika", UniversityID: "ui", Jenjang: core.D3,
				CurrentSemester: 6, GrantedAllowance: 6600000, CurrentBalance: 6600000, LastUpdatePeriod: "2025-JAN"},
		},
	})
	retry := services.RetryPolicy{MaxAttempts: 1}
	resolver := services.NewAllowanceResolver(st, services.AllowanceResolverConfig{Retry: retry})
	reports := sheetmem.New(nil)

	w := NewSyncWorker(Config{
		Advancer:       services.NewSemesterAdvancer(st, resolver, nil, retry, 2),
		Ledger:         services.NewLedgerService(st, nil, retry),
		Resolver:       resolver,
		Students:       st,
		Reports:        reports,
		Allowances:     sheetmem.New(nominal),
		AllowanceStore: st,
	})
	w.now = func() time.Time { return now }
	return fixture{store: st, reports: reports, worker: w}
}

func TestSweepPromotesAndExports(t *testing.T) {
	f := newFixture(t, nil, july2025)
	ctx := context.Background()

	report, err := f.worker.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Period != "2025-JUL" || report.Evaluated != 2 || report.Promoted != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rows := f.reports.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].StudentID != "s1" || rows[0].Semester != 3 || rows[0].Balance != 13200000 || rows[0].Period != "2025-JUL" {
		t.Errorf("unexpected s1 row: %+v", rows[0])
	}
	if rows[1].StudentID != "s2" || rows[1].Semester != 6 {
		t.Errorf("unexpected s2 row: %+v", rows[1])
	}

	// Nothing left to promote: no second export.
	report, err = f.worker.Sweep(ctx)
	if err != nil || report.Promoted != 0 {
		t.Fatalf("second sweep: %+v err=%v", report, err)
	}
	if len(f.reports.Rows()) != 2 {
		t.Fatalf("second sweep exported again")
	}
}

func TestSweepOutsideBoundary(t *testing.T) {
	f := newFixture(t, nil, time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))

	report, err := f.worker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Evaluated != 0 || report.Promoted != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(f.reports.Rows()) != 0 {
		t.Fatal("report written without promotions")
	}
}

func TestSweepUsesConfiguredZone(t *testing.T) {
	// 30 June 20:00 UTC is already 1 July in Jakarta.
	f := newFixture(t, nil, time.Date(2025, time.June, 30, 20, 0, 0, 0, time.UTC))
	f.worker.loc = time.FixedZone("WIB", 7*3600)

	report, err := f.worker.Sweep(context.Background())
	if err != nil || report.Period != "2025-JUL" || report.Promoted != 1 {
		t.Fatalf("Sweep = %+v err=%v", report, err)
	}
}

func TestStartupCheckImportsAllowancesFirst(t *testing.T) {
	nominal := map[core.ProgramCategory]core.AllowanceTable{core.NonMedical: {"1": 7000000}}
	f := newFixture(t, nominal, july2025)
	ctx := context.Background()

	if err := f.worker.StartupCheck(ctx); err != nil {
		t.Fatalf("StartupCheck: %v", err)
	}

	s1, err := f.store.GetStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if s1.CurrentBalance != 6600000+7000000 || s1.GrantedAllowance != 6600000+7000000 {
		t.Fatalf("promotion used stale allowance: %+v", s1)
	}
}

func TestRefreshAllowancesWithoutSource(t *testing.T) {
	f := newFixture(t, nil, july2025)
	f.worker.nominal = nil

	n, err := f.worker.RefreshAllowances(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("RefreshAllowances = %d err=%v", n, err)
	}
}

func TestHandleStudentChanged(t *testing.T) {
	f := newFixture(t, nil, july2025)
	ctx := context.Background()

	s1, _ := f.store.GetStudent(ctx, "s1")
	s1.CurrentBalance = 1
	f.store.PutStudent(ctx, s1)

	if err := f.worker.HandleStudentChanged(ctx, amqp.NewStudentChangedMessage("s1", services.ReasonSubmitted)); err != nil {
		t.Fatalf("HandleStudentChanged: %v", err)
	}
	got, _ := f.store.GetStudent(ctx, "s1")
	if got.CurrentBalance != 6600000 {
		t.Fatalf("balance = %d, want reconciled 6600000", got.CurrentBalance)
	}

	if err := f.worker.HandleStudentChanged(ctx, amqp.NewStudentChangedMessage("ghost", services.ReasonDenied)); err != nil {
		t.Fatalf("unknown student should be dropped, got %v", err)
	}
}

func TestExportReportWithoutWriter(t *testing.T) {
	f := newFixture(t, nil, july2025)
	f.worker.reports = nil

	ref, err := f.worker.ExportReport(context.Background(), "2025-JUL")
	if err != nil || ref != "" {
		t.Fatalf("ExportReport = %q err=%v", ref, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx, 5*time.Millisecond, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
