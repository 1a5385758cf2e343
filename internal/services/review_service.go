package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kiptrack/internal/core"
	"kiptrack/internal/store"
)

// ReviewStore is the store surface submission and review need.
type ReviewStore interface {
	store.StudentReader
	store.StudentWriter
	store.TransactionWriter
	store.LedgerWriter
}

// NewTransaction is a student's expense report before it is stored.
type NewTransaction struct {
	StudentID   string
	Date        string // TransactionDateLayout; empty means today
	Description string
	Category    string
	Quantity    int64
	UnitPrice   int64
	ProofImage  string
}

// ReviewService handles expense submission and the admin decision on it.
type ReviewService struct {
	store    ReviewStore
	notifier ChangeNotifier
	now      func() time.Time
}

func NewReviewService(st ReviewStore, notifier ChangeNotifier) *ReviewService {
	return &ReviewService{store: st, notifier: notifier, now: time.Now}
}

// Submit stores a PENDING transaction and debits the stored balance by its
// amount, mirroring what Reconcile derives.
func (s *ReviewService) Submit(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = s.now().Format(core.TransactionDateLayout)
	}
	tx := core.Transaction{
		ID:          uuid.NewString(),
		StudentID:   strings.TrimSpace(in.StudentID),
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Amount:      in.Quantity * in.UnitPrice,
		Status:      core.Pending,
		ProofImage:  in.ProofImage,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// The balance is derived from every transaction, the new one included, in
	// the same atomic write as the insert.
	student, err := s.store.SubmitTransaction(ctx, tx, func(st *core.Student, txs []core.Transaction) error {
		st.CurrentBalance = core.Reconcile(st.GrantedAllowance, txs).Balance
		return nil
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("submit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction submitted",
		"student_id", tx.StudentID,
		"transaction_id", tx.ID,
		"amount", tx.Amount,
		"category", tx.Category,
		"balance", student.CurrentBalance)

	notify(ctx, s.notifier, tx.StudentID, ReasonSubmitted)
	return tx, nil
}

// Approve marks a pending transaction APPROVED. Counters are unchanged.
func (s *ReviewService) Approve(ctx context.Context, studentID, txID string) (core.Transaction, error) {
	tx, err := s.store.DecideTransaction(ctx, studentID, txID, core.Approved, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("approve %s: %w", txID, err)
	}

	slog.InfoContext(ctx, "Transaction approved",
		"student_id", studentID,
		"transaction_id", txID)

	notify(ctx, s.notifier, studentID, ReasonApproved)
	return tx, nil
}

// Deny marks a pending transaction REJECTED and adds its amount to the
// student's violations in the same atomic step.
func (s *ReviewService) Deny(ctx context.Context, studentID, txID string) (core.Transaction, error) {
	return s.deny(ctx, studentID, txID, func(tx core.Transaction) int64 { return tx.Amount })
}

// DenyAmount is Deny with an explicitly supplied violation amount.
func (s *ReviewService) DenyAmount(ctx context.Context, studentID, txID string, amount int64) (core.Transaction, error) {
	if amount < 0 {
		return core.Transaction{}, fmt.Errorf("deny %s: %w", txID, core.ErrInvalidAmount)
	}
	return s.deny(ctx, studentID, txID, func(core.Transaction) int64 { return amount })
}

func (s *ReviewService) deny(ctx context.Context, studentID, txID string, amountOf func(core.Transaction) int64) (core.Transaction, error) {
	var violation int64
	tx, err := s.store.DecideTransaction(ctx, studentID, txID, core.Rejected,
		func(st *core.Student, tx core.Transaction) error {
			violation = amountOf(tx)
			st.TotalViolations += violation
			return nil
		})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("deny %s: %w", txID, err)
	}

	slog.InfoContext(ctx, "Transaction denied",
		"student_id", studentID,
		"transaction_id", txID,
		"amount", violation)

	notify(ctx, s.notifier, studentID, ReasonDenied)
	return tx, nil
}
