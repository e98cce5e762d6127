// Package sqlstore is the SQLite backend. Each write commits together with an
// audit event in the same transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyplan/internal/db"
	"studyplan/internal/domain"
	"studyplan/internal/events"
	"studyplan/internal/migrate"
)

// timeLayout keeps fixed-width UTC timestamps so ORDER BY on text is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

// Open opens the workspace database and applies pending migrations.
func Open(ctx context.Context, cfg db.Config) (*Store, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn), nil
}

func New(conn *sql.DB) *Store {
	return &Store{DB: conn, Events: events.Writer{}, Now: time.Now}
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) writer() events.Writer {
	w := s.Events
	if w.Now == nil {
		w.Now = s.Now
	}
	return w
}

const taskColumns = `id,owner,subject,topic,activity_type,scheduled_at,duration_minutes,COALESCE(notes,''),completed`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		t         domain.Task
		activity  string
		scheduled string
		completed int
	)
	err := row.Scan(&t.ID, &t.Owner, &t.Subject, &t.Topic, &activity, &scheduled, &t.DurationMinutes, &t.Notes, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ActivityType = domain.ActivityType(activity)
	t.Completed = completed != 0
	t.ScheduledAt, err = time.Parse(timeLayout, scheduled)
	if err != nil {
		return t, fmt.Errorf("task %s: bad scheduled_at %q: %w", t.ID, scheduled, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner=? ORDER BY scheduled_at ASC, id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, owner, id string) (domain.Task, error) {
	return scanTask(s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner=?`, id, owner))
}

func (s *Store) InsertTask(ctx context.Context, t domain.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,owner,subject,topic,activity_type,scheduled_at,duration_minutes,notes,completed) VALUES (?,?,?,?,?,?,?,?,?)`,
			t.ID, t.Owner, t.Subject, t.Topic, string(t.ActivityType), formatTime(t.ScheduledAt), t.DurationMinutes, nullable(t.Notes), boolInt(t.Completed)); err != nil {
			return err
		}
		return s.writer().Append(ctx, tx, events.TaskCreated, t.Owner, "task", t.ID, events.Payload{
			"topic":        t.Topic,
			"scheduled_at": t.ScheduledAt.UTC().Format(time.RFC3339),
		})
	})
}

func (s *Store) ReplaceTask(ctx context.Context, t domain.Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET subject=?,topic=?,activity_type=?,scheduled_at=?,duration_minutes=?,notes=?,completed=? WHERE id=? AND owner=?`,
			t.Subject, t.Topic, string(t.ActivityType), formatTime(t.ScheduledAt), t.DurationMinutes, nullable(t.Notes), boolInt(t.Completed), t.ID, t.Owner)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return s.writer().Append(ctx, tx, events.TaskUpdated, t.Owner, "task", t.ID, events.Payload{"completed": t.Completed})
	})
}

func (s *Store) DeleteTask(ctx context.Context, owner, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND owner=?`, id, owner)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return s.writer().Append(ctx, tx, events.TaskDeleted, owner, "task", id, nil)
	})
}

func (s *Store) ToggleTask(ctx context.Context, owner, id string) (domain.Task, error) {
	var out domain.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET completed = 1 - completed WHERE id=? AND owner=?`, id, owner)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		out, err = scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner=?`, id, owner))
		if err != nil {
			return err
		}
		return s.writer().Append(ctx, tx, events.TaskToggled, owner, "task", id, events.Payload{"completed": out.Completed})
	})
	return out, err
}

const testColumns = `id,owner,test_name,start_date,end_date,COALESCE(syllabus,'')`

func scanTest(row scanner) (domain.Test, error) {
	var t domain.Test
	err := row.Scan(&t.ID, &t.Owner, &t.TestName, &t.StartDate, &t.EndDate, &t.Syllabus)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTests(ctx context.Context, owner string) ([]domain.Test, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+testColumns+` FROM tests WHERE owner=? ORDER BY start_date ASC, id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *Store) GetTest(ctx context.Context, owner, id string) (domain.Test, error) {
	return scanTest(s.DB.QueryRowContext(ctx, `SELECT `+testColumns+` FROM tests WHERE id=? AND owner=?`, id, owner))
}

// InsertTests writes the batch in one transaction; a single failing row rolls back the rest.
func (s *Store) InsertTests(ctx context.Context, tests []domain.Test) error {
	if len(tests) == 0 {
		return nil
	}
	evtType := events.TestCreated
	if len(tests) > 1 {
		evtType = events.TestImported
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tests(id,owner,test_name,start_date,end_date,syllabus) VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range tests {
			if _, err := stmt.ExecContext(ctx, t.ID, t.Owner, t.TestName, t.StartDate, t.EndDate, nullable(t.Syllabus)); err != nil {
				return fmt.Errorf("insert test %q: %w", t.TestName, err)
			}
			if err := s.writer().Append(ctx, tx, evtType, t.Owner, "test", t.ID, events.Payload{
				"test_name":  t.TestName,
				"start_date": t.StartDate,
				"end_date":   t.EndDate,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteTest(ctx context.Context, owner, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tests WHERE id=? AND owner=?`, id, owner)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return s.writer().Append(ctx, tx, events.TestDeleted, owner, "test", id, nil)
	})
}

func (s *Store) DeleteTestsByOwner(ctx context.Context, owner string) (int, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tests WHERE owner=?`, owner)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return s.writer().Append(ctx, tx, events.TestsCleared, owner, "test", "", events.Payload{"removed": removed})
	})
	return int(removed), err
}

func (s *Store) GetSyllabus(ctx context.Context, owner string) (domain.SyllabusTopics, error) {
	var (
		out     = domain.SyllabusTopics{Owner: owner}
		raw     string
		updated string
	)
	err := s.DB.QueryRowContext(ctx, `SELECT topics_json,updated_at FROM syllabuses WHERE owner=?`, owner).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return out, domain.ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out.Topics); err != nil {
		return out, fmt.Errorf("decode syllabus topics: %w", err)
	}
	if out.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return out, fmt.Errorf("decode syllabus updated_at: %w", err)
	}
	return out, nil
}

func (s *Store) PutSyllabus(ctx context.Context, syl domain.SyllabusTopics) error {
	topics := syl.Topics
	if topics == nil {
		topics = []string{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO syllabuses(owner,topics_json,updated_at) VALUES (?,?,?)
			ON CONFLICT(owner) DO UPDATE SET topics_json=excluded.topics_json, updated_at=excluded.updated_at`,
			syl.Owner, string(data), formatTime(syl.UpdatedAt)); err != nil {
			return err
		}
		return s.writer().Append(ctx, tx, events.SyllabusSaved, syl.Owner, "syllabus", syl.Owner, events.Payload{"topics": len(topics)})
	})
}

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE email=?`, a.Email).Scan(&existing)
		if err == nil {
			return fmt.Errorf("account %s: %w", a.Email, domain.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(id,email,password_hash,created_at) VALUES (?,?,?,?)`,
			a.ID, a.Email, a.PasswordHash, formatTime(a.CreatedAt)); err != nil {
			return err
		}
		return s.writer().Append(ctx, tx, events.AccountSignup, a.ID, "account", a.ID, nil)
	})
}

func scanAccount(row scanner) (domain.Account, error) {
	var (
		a       domain.Account
		created string
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.CreatedAt, err = time.Parse(timeLayout, created)
	return a, err
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return scanAccount(s.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM accounts WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(s.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM accounts WHERE id=?`, id))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
