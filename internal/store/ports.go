// Package store defines the persistence ports the KIPTrack core depends on.
package store

import (
	"context"

	"kiptrack/internal/core"
)

// Snapshot is the state of one student pushed to subscribers after a change.
type Snapshot struct {
	Student      core.Student
	Transactions []core.Transaction
}

// StudentMutator mutates a student inside an atomic read-modify-write.
// Returning an error aborts the write.
type StudentMutator func(s *core.Student) error

// DecisionHook runs inside the same atomic write as a status change, with the
// decided transaction.
type DecisionHook func(s *core.Student, tx core.Transaction) error

// LedgerMutator runs inside an atomic write with the student and all of their
// transactions, including one being submitted.
type LedgerMutator func(s *core.Student, txs []core.Transaction) error

// Ports for outbound adapters.
type (
	StudentReader interface {
		// GetStudent returns core.ErrNotFound when the student does not exist.
		GetStudent(ctx context.Context, id string) (core.Student, error)
	}

	StudentWriter interface {
		// UpdateStudent atomically reads the student, applies fn and writes it back.
		UpdateStudent(ctx context.Context, id string, fn StudentMutator) (core.Student, error)
	}

	StudentLister interface {
		ListStudentIDs(ctx context.Context) ([]string, error)
	}

	TransactionReader interface {
		ListTransactions(ctx context.Context, studentID string) ([]core.Transaction, error)
	}

	TransactionWriter interface {
		AddTransaction(ctx context.Context, tx core.Transaction) error
		UpdateTransactionStatus(ctx context.Context, studentID, txID string, status core.Status) error
		// DecideTransaction moves a PENDING transaction to status and runs hook
		// against the owning student in the same atomic write. Deciding a
		// transaction twice returns core.ErrAlreadyDecided.
		DecideTransaction(ctx context.Context, studentID, txID string, status core.Status, hook DecisionHook) (core.Transaction, error)
	}

	// LedgerWriter changes a student together with a consistent view of their
	// transactions.
	LedgerWriter interface {
		// SubmitTransaction inserts tx and runs fn against the owning student in
		// the same atomic write, returning the stored student.
		SubmitTransaction(ctx context.Context, tx core.Transaction, fn LedgerMutator) (core.Student, error)
		UpdateStudentLedger(ctx context.Context, id string, fn LedgerMutator) (core.Student, error)
	}

	UniversityReader interface {
		GetUniversity(ctx context.Context, id string) (core.University, error)
	}

	ProgramReader interface {
		GetProgram(ctx context.Context, id string) (core.Program, error)
	}

	AllowanceConfigReader interface {
		// GetAllowanceConfig returns cluster id -> nominal for a classification.
		GetAllowanceConfig(ctx context.Context, category core.ProgramCategory) (core.AllowanceTable, error)
	}

	// AllowanceConfigWriter is implemented by backends that accept imported
	// allowance tables.
	AllowanceConfigWriter interface {
		PutAllowance(ctx context.Context, category core.ProgramCategory, clusterID string, nominal int64) error
	}

	Subscriber interface {
		// Subscribe delivers the current snapshot and then one per change until
		// ctx is cancelled, at which point the channel is closed.
		Subscribe(ctx context.Context, studentID string) (<-chan Snapshot, error)
	}

	// Store is the full contract a backend implements.
	Store interface {
		StudentReader
		StudentWriter
		StudentLister
		TransactionReader
		TransactionWriter
		LedgerWriter
		UniversityReader
		ProgramReader
		AllowanceConfigReader
		Subscriber
		Close() error
	}
)
