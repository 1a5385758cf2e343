package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FallbackAllowance is used when no configured nominal can be found.
const FallbackAllowance int64 = 8_000_000

const (
	NotDue PromotionState = iota
	Due
	Applied
)

type PromotionState int

func (p PromotionState) String() string {
	switch p {
	case Due:
		return "due"
	case Applied:
		return "applied"
	default:
		return "not-due"
	}
}

// PeriodKey returns the semester-boundary key for t ("2025-JAN" or
// "2025-JUL"). Outside January and July there is no boundary.
func PeriodKey(t time.Time) (string, bool) {
	switch t.Month() {
	case time.January:
		return fmt.Sprintf("%d-JAN", t.Year()), true
	case time.July:
		return fmt.Sprintf("%d-JUL", t.Year()), true
	default:
		return "", false
	}
}

// periodIndex orders period keys: year first, JAN before JUL.
func periodIndex(key string) (int, bool) {
	year, half, ok := strings.Cut(key, "-")
	if !ok {
		return 0, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return 0, false
	}
	switch half {
	case "JAN":
		return y * 2, true
	case "JUL":
		return y*2 + 1, true
	default:
		return 0, false
	}
}

// EvaluatePromotion decides whether s is due for promotion at now. A period at
// or before LastUpdatePeriod is never due, and neither is a student at the last
// semester of their level. An empty or malformed LastUpdatePeriod counts as
// never processed.
func EvaluatePromotion(s Student, now time.Time) PromotionState {
	key, ok := PeriodKey(now)
	if !ok {
		return NotDue
	}
	if last, ok := periodIndex(s.LastUpdatePeriod); ok {
		current, _ := periodIndex(key)
		if current <= last {
			return NotDue
		}
	}
	if s.CurrentSemester >= s.Jenjang.MaxSemester() {
		return NotDue
	}
	return Due
}

// TopUp is the amount credited at promotion: the allowance net of the
// semester's violations, never negative.
func TopUp(allowance, violations int64) int64 {
	if top := allowance - violations; top > 0 {
		return top
	}
	return 0
}

// ApplyPromotion moves s to the next semester: the allowance net of this
// semester's violations is added to the balance and violations reset. The
// top-up is also credited to GrantedAllowance so Reconcile keeps agreeing
// with the stored balance.
func ApplyPromotion(s Student, allowance int64, periodKey string) Student {
	topUp := TopUp(allowance, s.TotalViolations)
	s.CurrentBalance += topUp
	s.GrantedAllowance += topUp
	s.CurrentSemester++
	s.TotalViolations = 0
	s.LastUpdatePeriod = periodKey
	return s
}
