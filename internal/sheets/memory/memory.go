package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"kiptrack/internal/core"
	ports "kiptrack/internal/sheets"
)

// Store keeps reports in memory and serves allowance tables from a seed.
// It stands in for the spreadsheet when none is configured.
type Store struct {
	mu         sync.Mutex
	rows       []ports.ReportRow
	allowances map[core.ProgramCategory]core.AllowanceTable
}

var (
	_ ports.ReportWriter    = (*Store)(nil)
	_ ports.AllowanceReader = (*Store)(nil)
)

func New(allowances map[core.ProgramCategory]core.AllowanceTable) *Store {
	s := &Store{allowances: make(map[core.ProgramCategory]core.AllowanceTable)}
	for cat, table := range allowances {
		s.allowances[cat] = cloneTable(table)
	}
	return s
}

// NewFromFile reads "category,cluster,nominal" lines. Blank lines and lines
// starting with # are ignored; a missing file yields no tables.
func NewFromFile(path string) (*Store, error) {
	lines := readLines(path)
	tables := make(map[core.ProgramCategory]core.AllowanceTable)
	for i, line := range lines {
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: want category,cluster,nominal", path, i+1)
		}
		cat := core.ProgramCategory(strings.TrimSpace(parts[0]))
		if cat != core.Medical && cat != core.NonMedical {
			return nil, fmt.Errorf("%s:%d: unknown category %q", path, i+1, cat)
		}
		nominal, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: nominal: %w", path, i+1, err)
		}
		if tables[cat] == nil {
			tables[cat] = make(core.AllowanceTable)
		}
		tables[cat][strings.TrimSpace(parts[1])] = nominal
	}
	return New(tables), nil
}

// WriteReport stores the rows and returns a synthetic range reference.
func (s *Store) WriteReport(_ context.Context, rows []ports.ReportRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.rows) + 1
	s.rows = append(s.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", start, len(s.rows)), nil
}

// Rows returns every row written so far.
func (s *Store) Rows() []ports.ReportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ReportRow(nil), s.rows...)
}

func (s *Store) ReadAllowances(_ context.Context) (map[core.ProgramCategory]core.AllowanceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.ProgramCategory]core.AllowanceTable, len(s.allowances))
	for cat, table := range s.allowances {
		out[cat] = cloneTable(table)
	}
	return out, nil
}

func cloneTable(in core.AllowanceTable) core.AllowanceTable {
	out := make(core.AllowanceTable, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
