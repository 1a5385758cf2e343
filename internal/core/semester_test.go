package core

import (
	"testing"
	"time"
)

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		at   time.Time
		key  string
		isOK bool
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-JAN", true},
		{time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC), "2025-JAN", true},
		{time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), "2025-JUL", true},
		{time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "", false},
		{time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), "", false},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), "", false},
	}
	for _, tt := range tests {
		key, ok := PeriodKey(tt.at)
		if key != tt.key || ok != tt.isOK {
			t.Errorf("PeriodKey(%s) = %q,%v want %q,%v", tt.at.Format("2006-01-02"), key, ok, tt.key, tt.isOK)
		}
	}
}

func TestEvaluatePromotion(t *testing.T) {
	july := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	march := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		student Student
		now     time.Time
		want    PromotionState
	}{
		{"new period", Student{Jenjang: S1, CurrentSemester: 5, LastUpdatePeriod: "2024-JUL"}, july, Due},
		{"never processed", Student{Jenjang: S1, CurrentSemester: 1}, jan, Due},
		{"already applied", Student{Jenjang: S1, CurrentSemester: 5, LastUpdatePeriod: "2025-JUL"}, july, NotDue},
		{"outside window", Student{Jenjang: S1, CurrentSemester: 5}, march, NotDue},
		{"d3 at max", Student{Jenjang: D3, CurrentSemester: 6, LastUpdatePeriod: "2020-JAN"}, jan, NotDue},
		{"s1 at max", Student{Jenjang: S1, CurrentSemester: 8}, july, NotDue},
		{"d3 below max", Student{Jenjang: D3, CurrentSemester: 5}, july, Due},
		{"earlier period", Student{Jenjang: S1, CurrentSemester: 3, LastUpdatePeriod: "2025-JUL"}, time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), NotDue},
		{"jan before jul same year", Student{Jenjang: S1, CurrentSemester: 3, LastUpdatePeriod: "2025-JUL"}, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), NotDue},
		{"jul after jan same year", Student{Jenjang: S1, CurrentSemester: 3, LastUpdatePeriod: "2025-JAN"}, july, Due},
		{"malformed last period", Student{Jenjang: S1, CurrentSemester: 3, LastUpdatePeriod: "garbage"}, july, Due},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluatePromotion(tt.student, tt.now); got != tt.want {
				t.Errorf("EvaluatePromotion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyPromotionScenario(t *testing.T) {
	s := Student{
		Jenjang:          S1,
		CurrentSemester:  5,
		CurrentBalance:   100000,
		TotalViolations:  500000,
		LastUpdatePeriod: "2024-JUL",
	}
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if EvaluatePromotion(s, now) != Due {
		t.Fatal("expected student to be due")
	}
	key, _ := PeriodKey(now)
	got := ApplyPromotion(s, 8000000, key)

	if got.CurrentSemester != 6 || got.TotalViolations != 0 || got.LastUpdatePeriod != "2025-JUL" {
		t.Fatalf("unexpected promotion result: %+v", got)
	}
	if got.CurrentBalance != 100000+7500000 {
		t.Fatalf("CurrentBalance = %d, want %d", got.CurrentBalance, 100000+7500000)
	}
	if got.GrantedAllowance != 7500000 {
		t.Fatalf("GrantedAllowance = %d, want 7500000", got.GrantedAllowance)
	}
	if EvaluatePromotion(got, now) != NotDue {
		t.Fatal("second evaluation in the same period must be not-due")
	}
}

func TestPromotionOncePerPeriodAcrossDates(t *testing.T) {
	s := Student{Jenjang: S1, CurrentSemester: 2, LastUpdatePeriod: "2025-JAN"}
	dates := []time.Time{
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	promotions := 0
	for _, at := range dates {
		if EvaluatePromotion(s, at) != Due {
			continue
		}
		key, _ := PeriodKey(at)
		s = ApplyPromotion(s, 6600000, key)
		promotions++
	}
	if promotions != 1 || s.CurrentSemester != 3 || s.LastUpdatePeriod != "2025-JUL" {
		t.Fatalf("promotions = %d, student = %+v", promotions, s)
	}
}

func TestApplyPromotionTopUpNeverNegative(t *testing.T) {
	s := Student{Jenjang: S1, CurrentSemester: 2, CurrentBalance: 10, TotalViolations: 9000000}
	got := ApplyPromotion(s, 8000000, "2025-JAN")
	if got.CurrentBalance != 10 {
		t.Fatalf("CurrentBalance = %d, want 10", got.CurrentBalance)
	}
	if got.TotalViolations != 0 {
		t.Fatalf("TotalViolations = %d, want 0", got.TotalViolations)
	}
}

func TestMaxSemester(t *testing.T) {
	if S1.MaxSemester() != 8 || D3.MaxSemester() != 6 || Jenjang("").MaxSemester() != 8 {
		t.Fatal("unexpected max semesters")
	}
}
