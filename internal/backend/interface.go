package backend

import (
	"context"
	"time"

	"kiptrack/internal/amqp"
	"kiptrack/internal/services"
	"kiptrack/internal/sheets"
	"kiptrack/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult carries the store, its adapters and the services wired on top
// of them.
type BackendResult struct {
	Store store.Store

	// AMQP is nil when no broker is configured.
	AMQP *amqp.Client

	// Reports receives exported summaries. Allowances is nil when no
	// external allowance source is configured.
	Reports    sheets.ReportWriter
	Allowances sheets.AllowanceReader

	Resolver *services.AllowanceResolver
	Ledger   *services.LedgerService
	Review   *services.ReviewService
	Advancer *services.SemesterAdvancer
	Watcher  *services.Watcher

	Cleanup CleanupFunc
}

// Notifier returns the change notifier services publish to, or nil.
func (r *BackendResult) Notifier() services.ChangeNotifier {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific
	SeedFile string

	// AMQP is optional for both backends
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleReportSheet        string
	GoogleAllowanceSheet     string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Local report and allowance files
	ReportXLSXPath string
	AllowanceFile  string

	FallbackAllowance int64
	AllowanceCacheTTL time.Duration
	SweepConcurrency  int
	RetryMaxAttempts  int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
