package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kiptrack/internal/amqp"
	"kiptrack/internal/cache"
	"kiptrack/internal/services"
	"kiptrack/internal/sheets"
	"kiptrack/internal/sheets/excel"
	gsheet "kiptrack/internal/sheets/google"
	sheetmem "kiptrack/internal/sheets/memory"
	"kiptrack/internal/storage"
	"kiptrack/internal/store"
	"kiptrack/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		st, err = f.createSQLiteStore(config)
	case MemoryBackend:
		st, err = f.createMemoryStore(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: st}
	closers := []func() error{st.Close}

	retry := services.DefaultRetryPolicy()
	if config.RetryMaxAttempts > 0 {
		retry.MaxAttempts = config.RetryMaxAttempts
	}

	// AMQP is optional: a broker that cannot be reached at startup only
	// disables change events.
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, retry)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.AMQP = client
			closers = append(closers, client.Close)
		}
	}

	result.Reports, result.Allowances, err = f.createSheets(ctx, config)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	resolverConfig := services.DefaultAllowanceResolverConfig()
	resolverConfig.Retry = retry
	if config.FallbackAllowance > 0 {
		resolverConfig.Fallback = config.FallbackAllowance
	}
	if config.AllowanceCacheTTL > 0 {
		resolverConfig.CacheTTL = config.AllowanceCacheTTL
	}

	notifier := result.Notifier()
	result.Resolver = services.NewAllowanceResolver(st, resolverConfig)
	result.Ledger = services.NewLedgerService(st, notifier, retry)
	result.Review = services.NewReviewService(st, notifier)
	result.Advancer = services.NewSemesterAdvancer(st, result.Resolver, notifier, retry, config.SweepConcurrency)
	result.Watcher = services.NewWatcher(st)

	janitor := cache.NewJanitor()
	janitor.Register(result.Resolver.Cache())
	janitor.Start(resolverConfig.CacheTTL)
	closers = append(closers, func() error { janitor.Stop(); return nil })

	result.Cleanup = func() error { return closeAll(closers) }

	f.logger.Info("Backend ready",
		"backend", config.Type,
		"amqp_enabled", result.AMQP != nil,
		"allowance_source", result.Allowances != nil)

	return result, nil
}

// ImportAllowances copies the external allowance tables into the store when
// both sides support it. It is a no-op otherwise.
func (r *BackendResult) ImportAllowances(ctx context.Context) (int, error) {
	if r.Allowances == nil {
		return 0, nil
	}
	dst, ok := r.Store.(store.AllowanceConfigWriter)
	if !ok {
		return 0, nil
	}
	return r.Resolver.Import(ctx, r.Allowances, dst)
}

func (f *DefaultFactory) createSQLiteStore(config Config) (store.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (store.Store, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized empty memory backend")
		return memory.New(), nil
	}
	st, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed file: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return st, nil
}

// createSheets picks the report destination and allowance source: the
// spreadsheet when one is configured, then local files, then memory.
func (f *DefaultFactory) createSheets(ctx context.Context, config Config) (sheets.ReportWriter, sheets.AllowanceReader, error) {
	if config.GoogleSpreadsheetID != "" {
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			ReportSheet:     config.GoogleReportSheet,
			AllowanceSheet:  config.GoogleAllowanceSheet,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets reports", "spreadsheet_id", config.GoogleSpreadsheetID)
		return cli, cli, nil
	}

	var allowances sheets.AllowanceReader
	if config.AllowanceFile != "" {
		src, err := sheetmem.NewFromFile(config.AllowanceFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load allowance file: %w", err)
		}
		allowances = src
	}

	if config.ReportXLSXPath != "" {
		f.logger.Info("Initialized workbook reports", "path", config.ReportXLSXPath)
		return excel.New(config.ReportXLSXPath, config.GoogleReportSheet), allowances, nil
	}

	f.logger.Info("Reports kept in memory")
	return sheetmem.New(nil), allowances, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
