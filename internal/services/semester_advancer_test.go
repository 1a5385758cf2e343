package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kiptrack/internal/core"
)

func newTestAdvancer(st *flakyStore, notifier ChangeNotifier) *SemesterAdvancer {
	return NewSemesterAdvancer(st, newTestResolver(st), notifier, fastRetry, 4)
}

var july2025 = time.Date(2025, time.July, 1, 8, 0, 0, 0, time.UTC)

func TestAdvancePromotionScenario(t *testing.T) {
	st := newFlakyStore()
	ctx := context.Background()
	s, _ := st.GetStudent(ctx, "s1")
	s.UniversityID = "itb" // unconfigured, resolves to the fallback nominal
	s.CurrentBalance = 100000
	st.PutStudent(ctx, s)

	notifier := &recordingNotifier{}
	a := newTestAdvancer(st, notifier)

	out, err := a.Advance(ctx, "s1", july2025)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out.State != core.Applied || out.Allowance != 8000000 || out.TopUp != 7500000 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	got, _ := st.GetStudent(ctx, "s1")
	if got.CurrentSemester != 6 || got.TotalViolations != 0 || got.LastUpdatePeriod != "2025-JUL" {
		t.Fatalf("unexpected student: %+v", got)
	}
	if got.CurrentBalance != 100000+7500000 {
		t.Fatalf("balance = %d, want %d", got.CurrentBalance, 100000+7500000)
	}

	// Same period again: nothing changes.
	out, err = a.Advance(ctx, "s1", july2025.Add(72*time.Hour))
	if err != nil || out.State != core.NotDue {
		t.Fatalf("second advance: %+v err=%v", out, err)
	}
	again, _ := st.GetStudent(ctx, "s1")
	if again != got {
		t.Fatalf("second advance mutated student: %+v", again)
	}
	if n := len(notifier.all()); n != 1 {
		t.Fatalf("notifications = %d, want 1", n)
	}
}

func TestAdvanceTerminalSemester(t *testing.T) {
	st := newFlakyStore()
	a := newTestAdvancer(st, nil)
	ctx := context.Background()
	before, _ := st.GetStudent(ctx, "d3")

	for _, year := range []int{2025, 2026, 2030} {
		out, err := a.Advance(ctx, "d3", time.Date(year, time.January, 15, 0, 0, 0, 0, time.UTC))
		if err != nil || out.State != core.NotDue {
			t.Fatalf("year %d: %+v err=%v", year, out, err)
		}
	}
	after, _ := st.GetStudent(ctx, "d3")
	if after != before {
		t.Fatalf("terminal student mutated: %+v", after)
	}
}

func TestAdvanceOutsideBoundaryMonth(t *testing.T) {
	st := newFlakyStore()
	a := newTestAdvancer(st, nil)

	out, err := a.Advance(context.Background(), "s1", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || out.State != core.NotDue {
		t.Fatalf("March advance: %+v err=%v", out, err)
	}
}

func TestAdvanceConcurrentPromotesOnce(t *testing.T) {
	st := newFlakyStore()
	a := newTestAdvancer(st, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := a.Advance(ctx, "s1", july2025)
			if err != nil {
				t.Errorf("Advance: %v", err)
				return
			}
			if out.State == core.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied %d times, want 1", applied)
	}
	got, _ := st.GetStudent(ctx, "s1")
	if got.CurrentSemester != 6 {
		t.Fatalf("semester = %d, want 6", got.CurrentSemester)
	}
}

func TestAdvanceDoesNotGuessWhenUnavailable(t *testing.T) {
	st := newFlakyStore()
	ctx := context.Background()
	before, _ := st.GetStudent(ctx, "s1")

	resolverStore := newFlakyStore()
	resolverStore.down.Store(true)
	a := NewSemesterAdvancer(st, newTestResolver(resolverStore), nil, fastRetry, 1)

	if _, err := a.Advance(ctx, "s1", july2025); !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	after, _ := st.GetStudent(ctx, "s1")
	if after != before {
		t.Fatalf("student mutated without a resolved allowance: %+v", after)
	}
}

func TestAdvanceAll(t *testing.T) {
	st := newFlakyStore()
	a := newTestAdvancer(st, nil)
	ctx := context.Background()

	report, err := a.AdvanceAll(ctx, july2025)
	if err != nil {
		t.Fatalf("AdvanceAll: %v", err)
	}
	if report.Period != "2025-JUL" || report.Evaluated != 2 || report.Promoted != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	report, err = a.AdvanceAll(ctx, july2025)
	if err != nil || report.Promoted != 0 {
		t.Fatalf("second sweep: %+v err=%v", report, err)
	}

	report, err = a.AdvanceAll(ctx, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || report.Evaluated != 0 {
		t.Fatalf("off-boundary sweep: %+v err=%v", report, err)
	}
}

func TestSemesterNeverExceedsMax(t *testing.T) {
	st := newFlakyStore()
	a := newTestAdvancer(st, nil)
	ctx := context.Background()

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		if _, err := a.Advance(ctx, "s1", now); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		now = now.AddDate(0, 6, 0)
	}
	got, _ := st.GetStudent(ctx, "s1")
	if got.CurrentSemester != core.S1.MaxSemester() {
		t.Fatalf("semester = %d, want %d", got.CurrentSemester, core.S1.MaxSemester())
	}
}
