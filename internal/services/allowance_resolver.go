package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"kiptrack/internal/cache"
	"kiptrack/internal/core"
	"kiptrack/internal/store"
)

// ReferenceStore is the read side the resolver needs.
type ReferenceStore interface {
	store.UniversityReader
	store.ProgramReader
	store.AllowanceConfigReader
}

// AllowanceResolverConfig configures an AllowanceResolver.
type AllowanceResolverConfig struct {
	// Fallback is returned when no nominal is configured (default 8,000,000).
	Fallback int64

	// CacheTTL is how long an allowance table is trusted (default 10m).
	CacheTTL time.Duration

	// CacheSize bounds the number of cached tables (default 8).
	CacheSize int

	Retry RetryPolicy
}

func DefaultAllowanceResolverConfig() AllowanceResolverConfig {
	return AllowanceResolverConfig{
		Fallback:  core.FallbackAllowance,
		CacheTTL:  10 * time.Minute,
		CacheSize: 8,
		Retry:     DefaultRetryPolicy(),
	}
}

// AllowanceResolver maps a student's university cluster and program
// classification to the semester allowance nominal.
type AllowanceResolver struct {
	store  ReferenceStore
	config AllowanceResolverConfig
	tables *cache.LRUCache[core.AllowanceTable]
	group  singleflight.Group
}

func NewAllowanceResolver(st ReferenceStore, config AllowanceResolverConfig) *AllowanceResolver {
	if config.Fallback <= 0 {
		config.Fallback = core.FallbackAllowance
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 8
	}
	return &AllowanceResolver{
		store:  st,
		config: config,
		tables: cache.NewLRUCache[core.AllowanceTable](config.CacheSize, config.CacheTTL),
	}
}

// Cache exposes the table cache so a janitor can expire it.
func (r *AllowanceResolver) Cache() *cache.LRUCache[core.AllowanceTable] {
	return r.tables
}

// Fallback returns the nominal used when nothing is configured.
func (r *AllowanceResolver) Fallback() int64 {
	return r.config.Fallback
}

// ResolveAllowance never fails: any lookup problem yields the fallback.
func (r *AllowanceResolver) ResolveAllowance(ctx context.Context, universityID, programID string) int64 {
	nominal, err := r.Resolve(ctx, universityID, programID)
	if err != nil {
		slog.WarnContext(ctx, "Allowance lookup failed, using fallback",
			"university_id", universityID,
			"program_id", programID,
			"allowance", r.config.Fallback,
			"error", err)
		return r.config.Fallback
	}
	return nominal
}

// Resolve is the strict variant: missing configuration still resolves to the
// fallback, but a store that cannot be reached is reported as
// core.ErrUnavailable so the caller can decline to act on a guess.
func (r *AllowanceResolver) Resolve(ctx context.Context, universityID, programID string) (int64, error) {
	var uni core.University
	err := Retry(ctx, r.config.Retry, "get university", func(ctx context.Context) error {
		var err error
		uni, err = r.store.GetUniversity(ctx, universityID)
		return unavailable(err)
	})
	if errors.Is(err, core.ErrNotFound) {
		slog.DebugContext(ctx, "University not configured", "university_id", universityID)
		return r.config.Fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve university %s: %w", universityID, err)
	}

	category, err := r.classify(ctx, programID)
	if err != nil {
		return 0, err
	}

	table, err := r.table(ctx, category)
	if errors.Is(err, core.ErrNotFound) {
		slog.DebugContext(ctx, "Allowance config missing", "category", category)
		return r.config.Fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve allowance table %s: %w", category, err)
	}

	nominal, ok := table[uni.ClusterID]
	if !ok {
		return r.config.Fallback, nil
	}
	return nominal, nil
}

func (r *AllowanceResolver) classify(ctx context.Context, programID string) (core.ProgramCategory, error) {
	var prog core.Program
	err := Retry(ctx, r.config.Retry, "get program", func(ctx context.Context) error {
		var err error
		prog, err = r.store.GetProgram(ctx, programID)
		return unavailable(err)
	})
	if errors.Is(err, core.ErrNotFound) {
		return core.ClassifyProgramID(programID), nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve program %s: %w", programID, err)
	}
	return prog.Classify(), nil
}

// table loads an allowance table through the cache. Concurrent misses for
// the same category share one store read.
func (r *AllowanceResolver) table(ctx context.Context, category core.ProgramCategory) (core.AllowanceTable, error) {
	key := string(category)
	if t, ok := r.tables.Get(key); ok {
		return t, nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		var t core.AllowanceTable
		err := Retry(ctx, r.config.Retry, "get allowance config", func(ctx context.Context) error {
			var err error
			t, err = r.store.GetAllowanceConfig(ctx, category)
			return unavailable(err)
		})
		if err != nil {
			return nil, err
		}
		r.tables.Set(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Allowance table load shared", "category", category)
	}
	return v.(core.AllowanceTable), nil
}

// Invalidate drops every cached table.
func (r *AllowanceResolver) Invalidate() {
	r.tables.Purge()
}

// AllowanceSource supplies allowance tables maintained outside the store,
// such as the spreadsheet tab administrators edit.
type AllowanceSource interface {
	ReadAllowances(ctx context.Context) (map[core.ProgramCategory]core.AllowanceTable, error)
}

// Import copies every nominal from src into dst and drops the cached tables
// so the next resolution reads the imported values. It returns the number of
// entries written.
func (r *AllowanceResolver) Import(ctx context.Context, src AllowanceSource, dst store.AllowanceConfigWriter) (int, error) {
	tables, err := src.ReadAllowances(ctx)
	if err != nil {
		return 0, fmt.Errorf("read allowances: %w", err)
	}

	written := 0
	for category, table := range tables {
		for cluster, nominal := range table {
			if err := dst.PutAllowance(ctx, category, cluster, nominal); err != nil {
				r.Invalidate()
				return written, fmt.Errorf("store allowance %s/%s: %w", category, cluster, err)
			}
			written++
		}
	}
	r.Invalidate()

	slog.InfoContext(ctx, "Allowance tables imported", "entries", written)
	return written, nil
}
