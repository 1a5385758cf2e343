package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Pending  Status = "PENDING"
	Approved Status = "APPROVED"
	Rejected Status = "REJECTED"
)

const (
	S1 Jenjang = "S1"
	D3 Jenjang = "D3"
)

const (
	Medical    ProgramCategory = "medical"
	NonMedical ProgramCategory = "non-medical"
)

// TransactionDateLayout is the layout of Transaction.Date ("MMM dd/yyyy").
const TransactionDateLayout = "Jan 02/2006"

type (
	Status          string
	Jenjang         string
	ProgramCategory string

	Student struct {
		ID               string
		Name             string
		ProgramID        string
		UniversityID     string
		Jenjang          Jenjang
		CurrentSemester  int
		GrantedAllowance int64 // enrollment nominal plus every semester top-up
		CurrentBalance   int64
		TotalViolations  int64 // accumulated since the last semester reset
		LastUpdatePeriod string
	}

	// Transaction is an expense report. Only Status changes after creation.
	Transaction struct {
		ID          string
		StudentID   string
		Date        string
		Description string
		Category    string
		Quantity    int64
		UnitPrice   int64
		Amount      int64
		Status      Status
		ProofImage  string
	}

	University struct {
		ID        string
		Name      string
		ClusterID string
	}

	Program struct {
		ID       string
		Name     string
		Category ProgramCategory // empty when the classification is unknown
	}

	// AllowanceTable maps a cluster id to its nominal allowance for one
	// program classification.
	AllowanceTable map[string]int64
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnavailable    = errors.New("store unavailable")
	ErrMalformed      = errors.New("malformed data")
	ErrAlreadyDecided = errors.New("transaction already decided")

	ErrEmptyStudent     = errors.New("empty student id")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidPrice     = errors.New("unit price cannot be negative")
	ErrInvalidAmount    = errors.New("amount cannot be negative")
	ErrInvalidDate      = errors.New("invalid transaction date")
	ErrInvalidStatus    = errors.New("invalid transaction status")
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case Pending, Approved, Rejected:
		return true
	default:
		return false
	}
}

// MaxSemester returns the last semester of the degree level. Unknown levels
// are treated as S1.
func (j Jenjang) MaxSemester() int {
	if j == D3 {
		return 6
	}
	return 8
}

// ParseDate parses the transaction date.
func (t Transaction) ParseDate() (time.Time, error) {
	d, err := time.Parse(TransactionDateLayout, strings.TrimSpace(t.Date))
	if err != nil {
		return time.Time{}, errors.Join(ErrMalformed, err)
	}
	return d, nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.StudentID) == "" {
		return ErrEmptyStudent
	}
	if _, err := t.ParseDate(); err != nil {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if t.UnitPrice < 0 {
		return ErrInvalidPrice
	}
	if !t.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// ClassifyProgramID is the legacy classification by program identifier: a
// program is medical when its id mentions "kedokteran" but not "non".
// Prefer Program.Category when it is set.
func ClassifyProgramID(programID string) ProgramCategory {
	id := strings.ToLower(programID)
	if strings.Contains(id, "kedokteran") && !strings.Contains(id, "non") {
		return Medical
	}
	return NonMedical
}

// Classify returns the explicit category, falling back to the id shim.
func (p Program) Classify() ProgramCategory {
	switch p.Category {
	case Medical, NonMedical:
		return p.Category
	}
	return ClassifyProgramID(p.ID)
}
