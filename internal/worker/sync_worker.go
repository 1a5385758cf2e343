package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kiptrack/internal/amqp"
	"kiptrack/internal/core"
	"kiptrack/internal/services"
	"kiptrack/internal/sheets"
	"kiptrack/internal/store"
)

// SyncWorker runs the background side of KIPTrack: periodic semester
// sweeps, report export after promotions, allowance table imports and
// reconciliation of students announced over AMQP.
type SyncWorker struct {
	advancer  *services.SemesterAdvancer
	ledger    *services.LedgerService
	resolver  *services.AllowanceResolver
	students  store.StudentLister
	reports   sheets.ReportWriter
	nominal   sheets.AllowanceReader
	nominalTo store.AllowanceConfigWriter
	loc       *time.Location
	now       func() time.Time

	exportConcurrency int
}

// Config wires a SyncWorker. Reports, Allowances and AllowanceStore are
// optional; the related step is skipped when they are nil.
type Config struct {
	Advancer       *services.SemesterAdvancer
	Ledger         *services.LedgerService
	Resolver       *services.AllowanceResolver
	Students       store.StudentLister
	Reports        sheets.ReportWriter
	Allowances     sheets.AllowanceReader
	AllowanceStore store.AllowanceConfigWriter
	Location       *time.Location

	// ExportConcurrency bounds parallel reconciliations while building a
	// report (default 4).
	ExportConcurrency int
}

func NewSyncWorker(cfg Config) *SyncWorker {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ExportConcurrency < 1 {
		cfg.ExportConcurrency = 4
	}
	return &SyncWorker{
		advancer:          cfg.Advancer,
		ledger:            cfg.Ledger,
		resolver:          cfg.Resolver,
		students:          cfg.Students,
		reports:           cfg.Reports,
		nominal:           cfg.Allowances,
		nominalTo:         cfg.AllowanceStore,
		loc:               cfg.Location,
		now:               time.Now,
		exportConcurrency: cfg.ExportConcurrency,
	}
}

// HandleStudentChanged reconciles the student named in an AMQP message.
// Unknown students are acknowledged and dropped; other failures are returned
// so the message is redelivered.
func (w *SyncWorker) HandleStudentChanged(ctx context.Context, msg *amqp.StudentChangedMessage) error {
	slog.InfoContext(ctx, "Processing student change",
		"student_id", msg.StudentID,
		"reason", msg.Reason)

	summary, err := w.ledger.Reconcile(ctx, msg.StudentID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Change for unknown student dropped", "student_id", msg.StudentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile after %s: %w", msg.Reason, err)
	}

	if summary.Corrected {
		slog.InfoContext(ctx, "Balance corrected after change",
			"student_id", msg.StudentID,
			"balance", summary.Ledger.Balance)
	}
	return nil
}

// Sweep runs one promotion pass at the current time in the configured zone.
// When any student was promoted the semester report is exported.
func (w *SyncWorker) Sweep(ctx context.Context) (services.SweepReport, error) {
	report, err := w.advancer.AdvanceAll(ctx, w.now().In(w.loc))
	if err != nil {
		return report, fmt.Errorf("semester sweep: %w", err)
	}
	if report.Promoted == 0 {
		return report, nil
	}

	if _, err := w.ExportReport(ctx, report.Period); err != nil {
		// Promotions are stored; the next promoting sweep exports again.
		slog.ErrorContext(ctx, "Failed to export semester report",
			"period", report.Period,
			"error", err)
	}
	return report, nil
}

// ExportReport writes one row per student for period and returns the
// written range. Students that fail to reconcile are left out.
func (w *SyncWorker) ExportReport(ctx context.Context, period string) (string, error) {
	if w.reports == nil {
		return "", nil
	}

	ids, err := w.students.ListStudentIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list students: %w", err)
	}

	rows := make([]*sheets.ReportRow, len(ids))
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.exportConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := w.ledger.Reconcile(gctx, id)
			if err != nil {
				slog.ErrorContext(gctx, "Skipping student in report", "student_id", id, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			rows[i] = &sheets.ReportRow{
				Period:          period,
				StudentID:       summary.Student.ID,
				Name:            summary.Student.Name,
				Jenjang:         summary.Student.Jenjang,
				Semester:        summary.Student.CurrentSemester,
				Balance:         summary.Ledger.Balance,
				TotalSpent:      summary.Ledger.TotalSpent,
				TotalViolations: summary.Student.TotalViolations,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out := make([]sheets.ReportRow, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}

	ref, err := w.reports.WriteReport(ctx, out)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	slog.InfoContext(ctx, "Semester report exported",
		"period", period,
		"rows", len(out),
		"skipped", failed,
		"ref", ref)
	return ref, nil
}

// RefreshAllowances imports the external allowance tables into the store.
func (w *SyncWorker) RefreshAllowances(ctx context.Context) (int, error) {
	if w.nominal == nil || w.nominalTo == nil {
		return 0, nil
	}
	n, err := w.resolver.Import(ctx, w.nominal, w.nominalTo)
	if err != nil {
		return n, fmt.Errorf("refresh allowances: %w", err)
	}
	return n, nil
}

// StartupCheck imports allowances and runs a sweep so a boundary passed
// while the worker was down is applied right away.
func (w *SyncWorker) StartupCheck(ctx context.Context) error {
	if _, err := w.RefreshAllowances(ctx); err != nil {
		// Keep going on the tables already stored.
		slog.ErrorContext(ctx, "Failed to import allowances on startup", "error", err)
	}
	_, err := w.Sweep(ctx)
	return err
}

// Run sweeps every sweepInterval and refreshes allowances every
// allowanceInterval until ctx is cancelled. A zero allowanceInterval
// disables the refresh.
func (w *SyncWorker) Run(ctx context.Context, sweepInterval, allowanceInterval time.Duration) {
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	var allowanceC <-chan time.Time
	if allowanceInterval > 0 {
		allowanceTicker := time.NewTicker(allowanceInterval)
		defer allowanceTicker.Stop()
		allowanceC = allowanceTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		case <-allowanceC:
			if _, err := w.RefreshAllowances(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic allowance refresh failed", "error", err)
			}
		}
	}
}
