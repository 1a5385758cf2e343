package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"kiptrack/internal/core"
	"kiptrack/internal/store"
)

type Store struct {
	mu           sync.Mutex
	students     map[string]core.Student
	transactions map[string][]core.Transaction // by student id, insertion order
	universities map[string]core.University
	programs     map[string]core.Program
	allowances   map[core.ProgramCategory]core.AllowanceTable
	hub          *store.Hub
}

var (
	_ store.Store                 = (*Store)(nil)
	_ store.AllowanceConfigWriter = (*Store)(nil)
)

// Seed is the JSON document NewFromFile reads.
type Seed struct {
	Universities []core.University                            `json:"universities"`
	Programs     []core.Program                               `json:"programs"`
	Allowances   map[core.ProgramCategory]core.AllowanceTable `json:"allowances"`
	Students     []core.Student                               `json:"students"`
	Transactions []core.Transaction                           `json:"transactions"`
}

func New() *Store {
	return &Store{
		students:     make(map[string]core.Student),
		transactions: make(map[string][]core.Transaction),
		universities: make(map[string]core.University),
		programs:     make(map[string]core.Program),
		allowances:   make(map[core.ProgramCategory]core.AllowanceTable),
		hub:          store.NewHub(),
	}
}

// NewFromSeed builds a store holding a copy of seed.
func NewFromSeed(seed Seed) *Store {
	s := New()
	for _, u := range seed.Universities {
		s.universities[u.ID] = u
	}
	for _, p := range seed.Programs {
		s.programs[p.ID] = p
	}
	for cat, table := range seed.Allowances {
		s.allowances[cat] = cloneTable(table)
	}
	for _, st := range seed.Students {
		s.students[st.ID] = st
	}
	for _, tx := range seed.Transactions {
		s.transactions[tx.StudentID] = append(s.transactions[tx.StudentID], tx)
	}
	return s
}

// NewFromFile loads a JSON seed. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return NewFromSeed(seed), nil
}

func (s *Store) Close() error { return nil }

func (s *Store) GetStudent(_ context.Context, id string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, fmt.Errorf("student %s: %w", id, core.ErrNotFound)
	}
	return st, nil
}

// PutStudent inserts or replaces a student.
func (s *Store) PutStudent(_ context.Context, st core.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
	s.publishLocked(st.ID)
}

func (s *Store) UpdateStudent(_ context.Context, id string, fn store.StudentMutator) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, fmt.Errorf("student %s: %w", id, core.ErrNotFound)
	}
	if err := fn(&st); err != nil {
		return core.Student{}, err
	}
	st.ID = id
	s.students[id] = st
	s.publishLocked(id)
	return st, nil
}

func (s *Store) ListStudentIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.students))
	for id := range s.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListTransactions(_ context.Context, studentID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.transactions[studentID]...), nil
}

func (s *Store) AddTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := s.SubmitTransaction(ctx, tx, nil)
	return err
}

func (s *Store) SubmitTransaction(_ context.Context, tx core.Transaction, fn store.LedgerMutator) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[tx.StudentID]
	if !ok {
		return core.Student{}, fmt.Errorf("student %s: %w", tx.StudentID, core.ErrNotFound)
	}
	for _, existing := range s.transactions[tx.StudentID] {
		if existing.ID == tx.ID {
			return core.Student{}, fmt.Errorf("transaction %s already exists", tx.ID)
		}
	}
	txs := append(append([]core.Transaction(nil), s.transactions[tx.StudentID]...), tx)
	if fn != nil {
		if err := fn(&st, append([]core.Transaction(nil), txs...)); err != nil {
			return core.Student{}, err
		}
		st.ID = tx.StudentID
		s.students[tx.StudentID] = st
	}
	s.transactions[tx.StudentID] = txs
	s.publishLocked(tx.StudentID)
	return st, nil
}

func (s *Store) UpdateStudentLedger(_ context.Context, id string, fn store.LedgerMutator) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, fmt.Errorf("student %s: %w", id, core.ErrNotFound)
	}
	if err := fn(&st, append([]core.Transaction(nil), s.transactions[id]...)); err != nil {
		return core.Student{}, err
	}
	st.ID = id
	s.students[id] = st
	s.publishLocked(id)
	return st, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, studentID, txID string, status core.Status) error {
	_, err := s.DecideTransaction(ctx, studentID, txID, status, nil)
	return err
}

func (s *Store) DecideTransaction(_ context.Context, studentID, txID string, status core.Status, hook store.DecisionHook) (core.Transaction, error) {
	if !status.IsValid() || status == core.Pending {
		return core.Transaction{}, core.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.transactions[studentID]
	idx := -1
	for i := range txs {
		if txs[i].ID == txID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", txID, core.ErrNotFound)
	}
	if txs[idx].Status != core.Pending {
		return core.Transaction{}, fmt.Errorf("transaction %s is %s: %w", txID, txs[idx].Status, core.ErrAlreadyDecided)
	}

	decided := txs[idx]
	decided.Status = status

	if hook != nil {
		st, ok := s.students[studentID]
		if !ok {
			return core.Transaction{}, fmt.Errorf("student %s: %w", studentID, core.ErrNotFound)
		}
		if err := hook(&st, decided); err != nil {
			return core.Transaction{}, err
		}
		s.students[studentID] = st
	}
	txs[idx] = decided
	s.publishLocked(studentID)
	return decided, nil
}

func (s *Store) GetUniversity(_ context.Context, id string) (core.University, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.universities[id]
	if !ok {
		return core.University{}, fmt.Errorf("university %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetProgram(_ context.Context, id string) (core.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[id]
	if !ok {
		return core.Program{}, fmt.Errorf("program %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) GetAllowanceConfig(_ context.Context, category core.ProgramCategory) (core.AllowanceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.allowances[category]
	if !ok {
		return nil, fmt.Errorf("allowance config %s: %w", category, core.ErrNotFound)
	}
	return cloneTable(table), nil
}

func (s *Store) PutAllowance(_ context.Context, category core.ProgramCategory, clusterID string, nominal int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allowances[category] == nil {
		s.allowances[category] = make(core.AllowanceTable)
	}
	s.allowances[category][clusterID] = nominal
	return nil
}

func (s *Store) Subscribe(ctx context.Context, studentID string) (<-chan store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshotLocked(studentID)
	if !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, core.ErrNotFound)
	}
	return s.hub.Add(ctx, studentID, snap), nil
}

func (s *Store) snapshotLocked(studentID string) (store.Snapshot, bool) {
	st, ok := s.students[studentID]
	if !ok {
		return store.Snapshot{}, false
	}
	return store.Snapshot{
		Student:      st,
		Transactions: append([]core.Transaction(nil), s.transactions[studentID]...),
	}, true
}

func (s *Store) publishLocked(studentID string) {
	if !s.hub.Watched(studentID) {
		return
	}
	if snap, ok := s.snapshotLocked(studentID); ok {
		s.hub.Publish(studentID, snap)
	}
}

func cloneTable(in core.AllowanceTable) core.AllowanceTable {
	out := make(core.AllowanceTable, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
