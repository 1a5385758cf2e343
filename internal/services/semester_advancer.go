package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kiptrack/internal/core"
	"kiptrack/internal/store"
)

// AdvancerStore is the store surface semester promotion needs.
type AdvancerStore interface {
	store.StudentReader
	store.StudentWriter
	store.StudentLister
}

// Outcome reports what Advance did for one student.
type Outcome struct {
	StudentID string
	State     core.PromotionState
	Period    string
	Allowance int64
	TopUp     int64
	Student   core.Student
}

// SweepReport summarizes one AdvanceAll run.
type SweepReport struct {
	Period    string
	Evaluated int
	Promoted  int
	Failed    int
}

var errNoLongerDue = errors.New("promotion no longer due")

type SemesterAdvancer struct {
	store       AdvancerStore
	resolver    *AllowanceResolver
	notifier    ChangeNotifier
	retry       RetryPolicy
	concurrency int
}

func NewSemesterAdvancer(st AdvancerStore, resolver *AllowanceResolver, notifier ChangeNotifier, retry RetryPolicy, concurrency int) *SemesterAdvancer {
	if concurrency < 1 {
		concurrency = 4
	}
	return &SemesterAdvancer{
		store:       st,
		resolver:    resolver,
		notifier:    notifier,
		retry:       retry,
		concurrency: concurrency,
	}
}

// Advance promotes the student when a semester boundary at now has not yet
// been applied. The due check is repeated inside the atomic update, so two
// concurrent calls in the same period promote at most once.
func (a *SemesterAdvancer) Advance(ctx context.Context, studentID string, now time.Time) (Outcome, error) {
	out := Outcome{StudentID: studentID, State: core.NotDue}

	var student core.Student
	err := Retry(ctx, a.retry, "get student", func(ctx context.Context) error {
		var err error
		student, err = a.store.GetStudent(ctx, studentID)
		return unavailable(err)
	})
	if err != nil {
		return out, fmt.Errorf("advance %s: %w", studentID, err)
	}
	out.Student = student

	if core.EvaluatePromotion(student, now) != core.Due {
		return out, nil
	}
	period, _ := core.PeriodKey(now)
	out.Period = period

	// Resolved before the update: the mutator must not call back into the store.
	allowance, err := a.resolver.Resolve(ctx, student.UniversityID, student.ProgramID)
	if err != nil {
		return out, fmt.Errorf("advance %s: %w", studentID, err)
	}
	out.Allowance = allowance

	var topUp int64
	updated, err := a.store.UpdateStudent(ctx, studentID, func(s *core.Student) error {
		if core.EvaluatePromotion(*s, now) != core.Due {
			return errNoLongerDue
		}
		topUp = core.TopUp(allowance, s.TotalViolations)
		*s = core.ApplyPromotion(*s, allowance, period)
		return nil
	})
	if errors.Is(err, errNoLongerDue) {
		slog.DebugContext(ctx, "Promotion already applied concurrently",
			"student_id", studentID,
			"period", period)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("advance %s: %w", studentID, err)
	}

	out.State = core.Applied
	out.TopUp = topUp
	out.Student = updated

	slog.InfoContext(ctx, "Student promoted",
		"student_id", studentID,
		"period", period,
		"semester", updated.CurrentSemester,
		"allowance", allowance,
		"top_up", topUp,
		"balance", updated.CurrentBalance)

	notify(ctx, a.notifier, studentID, ReasonPromoted)
	return out, nil
}

// AdvanceAll runs Advance for every student with bounded concurrency.
// Individual failures are counted, not fatal; only listing students or a
// cancelled context fails the sweep.
func (a *SemesterAdvancer) AdvanceAll(ctx context.Context, now time.Time) (SweepReport, error) {
	period, ok := core.PeriodKey(now)
	report := SweepReport{Period: period}
	if !ok {
		return report, nil
	}

	var ids []string
	err := Retry(ctx, a.retry, "list students", func(ctx context.Context) error {
		var err error
		ids, err = a.store.ListStudentIDs(ctx)
		return unavailable(err)
	})
	if err != nil {
		return report, fmt.Errorf("list students: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := a.Advance(gctx, id, now)

			mu.Lock()
			defer mu.Unlock()
			report.Evaluated++
			switch {
			case err != nil:
				report.Failed++
				slog.ErrorContext(gctx, "Promotion failed",
					"student_id", id,
					"period", period,
					"error", err)
			case out.State == core.Applied:
				report.Promoted++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	slog.InfoContext(ctx, "Semester sweep finished",
		"period", report.Period,
		"evaluated", report.Evaluated,
		"promoted", report.Promoted,
		"failed", report.Failed)
	return report, nil
}
