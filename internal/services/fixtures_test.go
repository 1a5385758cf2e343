package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"kiptrack/internal/core"
	"kiptrack/internal/store/memory"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func testSeed() memory.Seed {
	return memory.Seed{
		Universities: []core.University{
			{ID: "ui", Name: "Universitas Indonesia", ClusterID: "1"},
			{ID: "unpad", Name: "Universitas Padjadjaran", ClusterID: "3"},
		},
		Programs: []core.Program{
			{ID: "kedokteran-umum", Category: core.Medical},
			{ID: "informatika", Category: core.NonMedical},
		},
		Allowances: map[core.ProgramCategory]core.AllowanceTable{
			core.Medical:    {"1": 12000000, "2": 11000000},
			core.NonMedical: {"1": 6600000, "2": 6000000},
		},
		Students: []core.Student{
			{
				ID:               "s1",
				Name:             "Siti",
				ProgramID:        "informatika",
				UniversityID:     "ui",
				Jenjang:          core.S1,
				CurrentSemester:  5,
				GrantedAllowance: 1000000,
				CurrentBalance:   1000000,
				TotalViolations:  500000,
				LastUpdatePeriod: "2024-JUL",
			},
			{
				ID:               "d3",
				Name:             "Dewi",
				ProgramID:        "informatika",
				UniversityID:     "ui",
				Jenjang:          core.D3,
				CurrentSemester:  6,
				GrantedAllowance: 500000,
				CurrentBalance:   500000,
			},
		},
	}
}

// flakyStore wraps the memory store and fails reads with core.ErrUnavailable
// while down is set or failures remain.
type flakyStore struct {
	*memory.Store
	down        atomic.Bool
	failures    atomic.Int32
	configReads atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.NewFromSeed(testSeed())}
}

func (f *flakyStore) fail() error {
	if f.down.Load() {
		return core.ErrUnavailable
	}
	if f.failures.Add(-1) >= 0 {
		return core.ErrUnavailable
	}
	f.failures.Store(0)
	return nil
}

func (f *flakyStore) GetStudent(ctx context.Context, id string) (core.Student, error) {
	if err := f.fail(); err != nil {
		return core.Student{}, err
	}
	return f.Store.GetStudent(ctx, id)
}

func (f *flakyStore) GetUniversity(ctx context.Context, id string) (core.University, error) {
	if err := f.fail(); err != nil {
		return core.University{}, err
	}
	return f.Store.GetUniversity(ctx, id)
}

func (f *flakyStore) GetProgram(ctx context.Context, id string) (core.Program, error) {
	if err := f.fail(); err != nil {
		return core.Program{}, err
	}
	return f.Store.GetProgram(ctx, id)
}

func (f *flakyStore) GetAllowanceConfig(ctx context.Context, category core.ProgramCategory) (core.AllowanceTable, error) {
	f.configReads.Add(1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Store.GetAllowanceConfig(ctx, category)
}

// recordingNotifier collects change notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) NotifyStudentChanged(_ context.Context, studentID, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, studentID+":"+reason)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}
