package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"meetingrelay/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("not found")

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type SentTaskFilter struct {
	PayloadID string
	Page
}

// Repository is the durable store. Writes are single statements; a webhook's
// payload and task rows are not wrapped in one transaction.
type Repository interface {
	StorePayload(ctx context.Context, body json.RawMessage) (domain.RawPayload, error)
	StoreSentTask(ctx context.Context, rec domain.SentTaskRecord) error
	GetPayload(ctx context.Context, id string) (domain.RawPayload, error)
	ListPayloads(ctx context.Context, page Page) ([]domain.RawPayload, error)
	ListSentTasks(ctx context.Context, filter SentTaskFilter) ([]domain.SentTaskRecord, error)
	// EachSentTask streams every record in insertion order.
	EachSentTask(ctx context.Context, fn func(domain.SentTaskRecord) error) error
}

// Open opens the sqlite file at path and applies pending migrations.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or upgrades the schema.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type sqliteRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepo(db *sql.DB) Repository {
	return &sqliteRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *sqliteRepo) StorePayload(ctx context.Context, body json.RawMessage) (domain.RawPayload, error) {
	p := domain.RawPayload{
		ID:         "pl_" + uuid.NewString(),
		ReceivedAt: r.now(),
		Body:       body,
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO payloads (id,received_at,body) VALUES (?,?,?)`,
		p.ID, p.ReceivedAt, string(p.Body))
	if err != nil {
		return domain.RawPayload{}, fmt.Errorf("insert payload: %w", err)
	}
	return p, nil
}

func (r *sqliteRepo) StoreSentTask(ctx context.Context, rec domain.SentTaskRecord) error {
	if rec.ID == "" {
		rec.ID = "st_" + uuid.NewString()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sent_tasks (id,payload_id,task,owner,sent_at,response_text,success,meeting_name,meeting_date)
VALUES (?,?,?,?,?,?,?,?,?)
`, rec.ID, rec.PayloadID, rec.Task, rec.Owner, rec.SentAt, rec.ResponseText, rec.Success, rec.MeetingName, rec.MeetingDate)
	if err != nil {
		return fmt.Errorf("insert sent task: %w", err)
	}
	return nil
}

func (r *sqliteRepo) GetPayload(ctx context.Context, id string) (domain.RawPayload, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id,received_at,body FROM payloads WHERE id=?`, id)
	p, err := scanPayload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawPayload{}, ErrNotFound
	}
	return p, err
}

func (r *sqliteRepo) ListPayloads(ctx context.Context, page Page) ([]domain.RawPayload, error) {
	page = page.normalize()
	rows, err := r.db.QueryContext(ctx, `
SELECT id,received_at,body FROM payloads ORDER BY received_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payloads := []domain.RawPayload{}
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

func (r *sqliteRepo) ListSentTasks(ctx context.Context, filter SentTaskFilter) ([]domain.SentTaskRecord, error) {
	page := filter.Page.normalize()
	query := `SELECT ` + sentTaskColumns + ` FROM sent_tasks`
	args := []any{}
	if filter.PayloadID != "" {
		query += ` WHERE payload_id=?`
		args = append(args, filter.PayloadID)
	}
	query += ` ORDER BY rowid LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.SentTaskRecord{}
	for rows.Next() {
		rec, err := scanSentTask(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *sqliteRepo) EachSentTask(ctx context.Context, fn func(domain.SentTaskRecord) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sentTaskColumns+` FROM sent_tasks ORDER BY rowid`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanSentTask(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

const sentTaskColumns = `id,payload_id,task,owner,sent_at,response_text,success,meeting_name,meeting_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanPayload(s scanner) (domain.RawPayload, error) {
	var p domain.RawPayload
	var body string
	if err := s.Scan(&p.ID, &p.ReceivedAt, &body); err != nil {
		return domain.RawPayload{}, err
	}
	p.Body = json.RawMessage(body)
	return p, nil
}

func scanSentTask(s scanner) (domain.SentTaskRecord, error) {
	var rec domain.SentTaskRecord
	var name, date sql.NullString
	if err := s.Scan(&rec.ID, &rec.PayloadID, &rec.Task, &rec.Owner, &rec.SentAt,
		&rec.ResponseText, &rec.Success, &name, &date); err != nil {
		return domain.SentTaskRecord{}, err
	}
	if name.Valid {
		rec.MeetingName = &name.String
	}
	if date.Valid {
		rec.MeetingDate = &date.String
	}
	return rec, nil
}
