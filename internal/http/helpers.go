package http

import (
	"strings"

	"kiptrack/internal/core"
	"kiptrack/internal/services"
)

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type studentJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ProgramID        string `json:"program_id"`
	UniversityID     string `json:"university_id"`
	Jenjang          string `json:"jenjang"`
	CurrentSemester  int    `json:"current_semester"`
	GrantedAllowance int64  `json:"granted_allowance"`
	CurrentBalance   int64  `json:"current_balance"`
	TotalViolations  int64  `json:"total_violations"`
	LastUpdatePeriod string `json:"last_update_period,omitempty"`
}

type transactionJSON struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	ProofImage  string `json:"proof_image,omitempty"`
}

type categoryJSON struct {
	Name       string  `json:"name"`
	Amount     int64   `json:"amount"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color"`
}

type summaryJSON struct {
	Student                studentJSON       `json:"student"`
	Balance                int64             `json:"balance"`
	BalanceFormatted       string            `json:"balance_formatted"`
	BalanceTerbilang       string            `json:"balance_terbilang"`
	TotalSpent             int64             `json:"total_spent"`
	TotalViolationsHistory int64             `json:"total_violations_history"`
	Categories             []categoryJSON    `json:"categories"`
	Transactions           []transactionJSON `json:"transactions"`
	Corrected              bool              `json:"corrected"`
}

type outcomeJSON struct {
	StudentID string      `json:"student_id"`
	State     string      `json:"state"`
	Period    string      `json:"period,omitempty"`
	Allowance int64       `json:"allowance,omitempty"`
	TopUp     int64       `json:"top_up"`
	Student   studentJSON `json:"student"`
}

func toStudentJSON(s core.Student) studentJSON {
	return studentJSON{
		ID:               s.ID,
		Name:             s.Name,
		ProgramID:        s.ProgramID,
		UniversityID:     s.UniversityID,
		Jenjang:          string(s.Jenjang),
		CurrentSemester:  s.CurrentSemester,
		GrantedAllowance: s.GrantedAllowance,
		CurrentBalance:   s.CurrentBalance,
		TotalViolations:  s.TotalViolations,
		LastUpdatePeriod: s.LastUpdatePeriod,
	}
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		StudentID:   t.StudentID,
		Date:        t.Date,
		Description: t.Description,
		Category:    t.Category,
		Quantity:    t.Quantity,
		UnitPrice:   t.UnitPrice,
		Amount:      t.Amount,
		Status:      string(t.Status),
		ProofImage:  t.ProofImage,
	}
}

func toTransactionsJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func toSummaryJSON(s services.Summary) summaryJSON {
	cats := make([]categoryJSON, 0, len(s.Ledger.Categories))
	for _, c := range s.Ledger.Categories {
		cats = append(cats, categoryJSON{Name: c.Name, Amount: c.Amount, Percentage: c.Percentage, Color: c.Color})
	}
	return summaryJSON{
		Student:                toStudentJSON(s.Student),
		Balance:                s.Ledger.Balance,
		BalanceFormatted:       core.FormatRupiah(s.Ledger.Balance),
		BalanceTerbilang:       core.Terbilang(s.Ledger.Balance),
		TotalSpent:             s.Ledger.TotalSpent,
		TotalViolationsHistory: s.Ledger.TotalViolationsHistory,
		Categories:             cats,
		Transactions:           toTransactionsJSON(s.Transactions),
		Corrected:              s.Corrected,
	}
}

func toOutcomeJSON(o services.Outcome) outcomeJSON {
	return outcomeJSON{
		StudentID: o.StudentID,
		State:     o.State.String(),
		Period:    o.Period,
		Allowance: o.Allowance,
		TopUp:     o.TopUp,
		Student:   toStudentJSON(o.Student),
	}
}
