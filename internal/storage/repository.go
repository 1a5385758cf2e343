package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"kiptrack/internal/core"
	"kiptrack/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the SQLite-backed store. All student mutations run in
// a database transaction over a single connection, so read-modify-write
// sequences are serialized.
type SQLiteRepository struct {
	db  *sql.DB
	hub *store.Hub
}

var (
	_ store.Store                 = (*SQLiteRepository)(nil)
	_ store.AllowanceConfigWriter = (*SQLiteRepository)(nil)
)

const studentColumns = `id, name, program_id, university_id, jenjang, current_semester,
	granted_allowance, current_balance, total_violations, last_update_period`

const transactionColumns = `id, student_id, date, description, category, quantity,
	unit_price, amount, status, proof_image`

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, hub: store.NewHub()}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	return nil
}

func (r *SQLiteRepository) GetStudent(ctx context.Context, id string) (core.Student, error) {
	return getStudent(ctx, r.db, id)
}

// PutStudent inserts or replaces a student record.
func (r *SQLiteRepository) PutStudent(ctx context.Context, s core.Student) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, program_id = excluded.program_id,
			university_id = excluded.university_id, jenjang = excluded.jenjang,
			current_semester = excluded.current_semester,
			granted_allowance = excluded.granted_allowance,
			current_balance = excluded.current_balance,
			total_violations = excluded.total_violations,
			last_update_period = excluded.last_update_period,
			updated_at = CURRENT_TIMESTAMP`,
		s.ID, s.Name, s.ProgramID, s.UniversityID, string(s.Jenjang), s.CurrentSemester,
		s.GrantedAllowance, s.CurrentBalance, s.TotalViolations, s.LastUpdatePeriod)
	if err != nil {
		return fmt.Errorf("put student %s: %w", s.ID, unavailable(err))
	}
	r.publish(ctx, s.ID)
	return nil
}

func (r *SQLiteRepository) UpdateStudent(ctx context.Context, id string, fn store.StudentMutator) (core.Student, error) {
	var updated core.Student
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getStudent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		s.ID = id
		if err := writeStudent(ctx, tx, s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return core.Student{}, err
	}

	slog.DebugContext(ctx, "Student updated",
		"student_id", id,
		"balance", updated.CurrentBalance,
		"semester", updated.CurrentSemester,
		"violations", updated.TotalViolations)

	r.publish(ctx, id)
	return updated, nil
}

func (r *SQLiteRepository) ListStudentIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", unavailable(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, studentID string) ([]core.Transaction, error) {
	return listTransactions(ctx, r.db, studentID)
}

func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.SubmitTransaction(ctx, t, nil)
	return err
}

func (r *SQLiteRepository) SubmitTransaction(ctx context.Context, t core.Transaction, fn store.LedgerMutator) (core.Student, error) {
	var updated core.Student
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getStudent(ctx, tx, t.StudentID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.StudentID, t.Date, t.Description, t.Category, t.Quantity,
			t.UnitPrice, t.Amount, string(t.Status), t.ProofImage)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		if fn != nil {
			txs, err := listTransactions(ctx, tx, t.StudentID)
			if err != nil {
				return err
			}
			if err := fn(&s, txs); err != nil {
				return err
			}
			s.ID = t.StudentID
			if err := writeStudent(ctx, tx, s); err != nil {
				return err
			}
		}
		updated = s
		return nil
	})
	if err != nil {
		return core.Student{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"transaction_id", t.ID,
		"student_id", t.StudentID,
		"amount", t.Amount,
		"category", t.Category)

	r.publish(ctx, t.StudentID)
	return updated, nil
}

// UpdateStudentLedger runs fn with the student and their transactions read in
// the same SQL transaction as the write.
func (r *SQLiteRepository) UpdateStudentLedger(ctx context.Context, id string, fn store.LedgerMutator) (core.Student, error) {
	var updated core.Student
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getStudent(ctx, tx, id)
		if err != nil {
			return err
		}
		txs, err := listTransactions(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&s, txs); err != nil {
			return err
		}
		s.ID = id
		if err := writeStudent(ctx, tx, s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return core.Student{}, err
	}
	r.publish(ctx, id)
	return updated, nil
}

func (r *SQLiteRepository) UpdateTransactionStatus(ctx context.Context, studentID, txID string, status core.Status) error {
	_, err := r.DecideTransaction(ctx, studentID, txID, status, nil)
	return err
}

func (r *SQLiteRepository) DecideTransaction(ctx context.Context, studentID, txID string, status core.Status, hook store.DecisionHook) (core.Transaction, error) {
	if !status.IsValid() || status == core.Pending {
		return core.Transaction{}, core.ErrInvalidStatus
	}

	var decided core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+transactionColumns+`
			FROM transactions WHERE id = ? AND student_id = ?`, txID, studentID)
		t, err := scanTransaction(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transaction %s: %w", txID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get transaction %s: %w", txID, unavailable(err))
		}
		if t.Status != core.Pending {
			return fmt.Errorf("transaction %s is %s: %w", txID, t.Status, core.ErrAlreadyDecided)
		}

		// Guarded on PENDING so a concurrent decision on another connection loses.
		res, err := tx.ExecContext(ctx, `UPDATE transactions
			SET status = ?, decided_at = CURRENT_TIMESTAMP
			WHERE id = ? AND student_id = ? AND status = 'PENDING'`,
			string(status), txID, studentID)
		if err != nil {
			return fmt.Errorf("update transaction %s: %w", txID, unavailable(err))
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("transaction %s: %w", txID, core.ErrAlreadyDecided)
		}
		t.Status = status

		if hook != nil {
			s, err := getStudent(ctx, tx, studentID)
			if err != nil {
				return err
			}
			if err := hook(&s, t); err != nil {
				return err
			}
			if err := writeStudent(ctx, tx, s); err != nil {
				return err
			}
		}
		decided = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction decided",
		"transaction_id", txID,
		"student_id", studentID,
		"status", string(status))

	r.publish(ctx, studentID)
	return decided, nil
}

func (r *SQLiteRepository) GetUniversity(ctx context.Context, id string) (core.University, error) {
	var u core.University
	err := r.db.QueryRowContext(ctx, `SELECT id, name, cluster_id FROM universities WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.ClusterID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.University{}, fmt.Errorf("university %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.University{}, fmt.Errorf("get university %s: %w", id, unavailable(err))
	}
	return u, nil
}

func (r *SQLiteRepository) PutUniversity(ctx context.Context, u core.University) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO universities (id, name, cluster_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, cluster_id = excluded.cluster_id`,
		u.ID, u.Name, u.ClusterID)
	if err != nil {
		return fmt.Errorf("put university %s: %w", u.ID, unavailable(err))
	}
	return nil
}

func (r *SQLiteRepository) GetProgram(ctx context.Context, id string) (core.Program, error) {
	var (
		p   core.Program
		cat string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, category FROM programs WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Program{}, fmt.Errorf("program %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Program{}, fmt.Errorf("get program %s: %w", id, unavailable(err))
	}
	p.Category = core.ProgramCategory(cat)
	return p, nil
}

func (r *SQLiteRepository) PutProgram(ctx context.Context, p core.Program) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO programs (id, name, category) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category`,
		p.ID, p.Name, string(p.Category))
	if err != nil {
		return fmt.Errorf("put program %s: %w", p.ID, unavailable(err))
	}
	return nil
}

func (r *SQLiteRepository) GetAllowanceConfig(ctx context.Context, category core.ProgramCategory) (core.AllowanceTable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cluster_id, nominal FROM allowance_config WHERE category = ?`, string(category))
	if err != nil {
		return nil, fmt.Errorf("get allowance config %s: %w", category, unavailable(err))
	}
	defer rows.Close()

	table := make(core.AllowanceTable)
	for rows.Next() {
		var (
			cluster string
			nominal int64
		)
		if err := rows.Scan(&cluster, &nominal); err != nil {
			return nil, fmt.Errorf("scan allowance config: %w", err)
		}
		table[cluster] = nominal
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowance config: %w", unavailable(err))
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("allowance config %s: %w", category, core.ErrNotFound)
	}
	return table, nil
}

func (r *SQLiteRepository) PutAllowance(ctx context.Context, category core.ProgramCategory, clusterID string, nominal int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO allowance_config (category, cluster_id, nominal) VALUES (?, ?, ?)
		ON CONFLICT(category, cluster_id) DO UPDATE SET nominal = excluded.nominal`,
		string(category), clusterID, nominal)
	if err != nil {
		return fmt.Errorf("put allowance %s/%s: %w", category, clusterID, unavailable(err))
	}
	return nil
}

// Subscribe notifies about changes made through this repository. Changes by
// other processes arrive through the change-event queue instead.
func (r *SQLiteRepository) Subscribe(ctx context.Context, studentID string) (<-chan store.Snapshot, error) {
	snap, err := r.snapshot(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return r.hub.Add(ctx, studentID, snap), nil
}

func (r *SQLiteRepository) snapshot(ctx context.Context, studentID string) (store.Snapshot, error) {
	s, err := r.GetStudent(ctx, studentID)
	if err != nil {
		return store.Snapshot{}, err
	}
	txs, err := r.ListTransactions(ctx, studentID)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Student: s, Transactions: txs}, nil
}

func (r *SQLiteRepository) publish(ctx context.Context, studentID string) {
	if !r.hub.Watched(studentID) {
		return
	}
	snap, err := r.snapshot(ctx, studentID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to build snapshot for subscribers", "student_id", studentID, "error", err)
		return
	}
	r.hub.Publish(studentID, snap)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", unavailable(err))
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", unavailable(err))
	}
	return nil
}

func getStudent(ctx context.Context, q querier, id string) (core.Student, error) {
	row := q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, fmt.Errorf("student %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("get student %s: %w", id, unavailable(err))
	}
	return s, nil
}

func writeStudent(ctx context.Context, q querier, s core.Student) error {
	_, err := q.ExecContext(ctx, `UPDATE students SET
			name = ?, program_id = ?, university_id = ?, jenjang = ?,
			current_semester = ?, granted_allowance = ?, current_balance = ?,
			total_violations = ?, last_update_period = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		s.Name, s.ProgramID, s.UniversityID, string(s.Jenjang),
		s.CurrentSemester, s.GrantedAllowance, s.CurrentBalance,
		s.TotalViolations, s.LastUpdatePeriod, s.ID)
	if err != nil {
		return fmt.Errorf("write student %s: %w", s.ID, unavailable(err))
	}
	return nil
}

func listTransactions(ctx context.Context, q querier, studentID string) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions WHERE student_id = ? ORDER BY created_at, rowid`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", unavailable(err))
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", unavailable(err))
	}
	return txs, nil
}

func scanStudent(row rowScanner) (core.Student, error) {
	var (
		s       core.Student
		jenjang string
	)
	err := row.Scan(&s.ID, &s.Name, &s.ProgramID, &s.UniversityID, &jenjang, &s.CurrentSemester,
		&s.GrantedAllowance, &s.CurrentBalance, &s.TotalViolations, &s.LastUpdatePeriod)
	s.Jenjang = core.Jenjang(jenjang)
	return s, err
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		status string
	)
	err := row.Scan(&t.ID, &t.StudentID, &t.Date, &t.Description, &t.Category, &t.Quantity,
		&t.UnitPrice, &t.Amount, &status, &t.ProofImage)
	t.Status = core.Status(status)
	return t, err
}

// unavailable tags a driver error as a store availability problem.
func unavailable(err error) error {
	if errors.Is(err, core.ErrUnavailable) {
		return err
	}
	return errors.Join(core.ErrUnavailable, err)
}
