package organization

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akabaki/saas-ui/internal/models"
)

// SQLiteStore persists organizations in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and creates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS organizations (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			email             TEXT NOT NULL,
			contact_person    TEXT NOT NULL,
			phone             TEXT NOT NULL DEFAULT '',
			description       TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL DEFAULT 'active',
			conversions_count INTEGER NOT NULL DEFAULT 0,
			last_activity     INTEGER NOT NULL,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`)
	return err
}

const selectColumns = `id, name, email, contact_person, phone, description, status,
	conversions_count, last_activity, created_at, updated_at`

func (s *SQLiteStore) Create(ctx context.Context, in models.OrganizationInput) (*models.Organization, error) {
	in = normalize(in)
	if err := Validate(in); err != nil {
		return nil, err
	}
	org := newOrganization(in, s.now())

	_, err := s.db.ExecContext(ctx, `INSERT INTO organizations (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Email, org.ContactPerson, org.Phone, org.Description, string(org.Status),
		org.ConversionsCount, org.LastActivity.UnixMilli(), org.CreatedAt.UnixMilli(), org.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("inserting organization: %w", err)
	}
	return s.Get(ctx, org.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM organizations WHERE id = ?`, id)
	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading organization: %w", err)
	}
	return org, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM organizations ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	list := []models.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *org)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, in models.OrganizationInput) (*models.Organization, error) {
	in = normalize(in)
	if err := Validate(in); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE organizations
		SET name = ?, email = ?, contact_person = ?, phone = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.Email, in.ContactPerson, in.Phone, in.Description, s.now().UnixMilli(), id)
	if err := affectedOne(res, err, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status models.OrganizationStatus) (*models.Organization, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE organizations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UnixMilli(), id)
	if err := affectedOne(res, err, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = ?`, id)
	return affectedOne(res, err, id)
}

func (s *SQLiteStore) RecordConversion(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE organizations
		SET conversions_count = conversions_count + 1, last_activity = MAX(last_activity, ?)
		WHERE id = ?`, at.UnixMilli(), id)
	return affectedOne(res, err, id)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting organizations: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func affectedOne(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("updating organization %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(r rowScanner) (*models.Organization, error) {
	var (
		org                   models.Organization
		status                string
		last, created, update int64
	)
	err := r.Scan(&org.ID, &org.Name, &org.Email, &org.ContactPerson, &org.Phone, &org.Description,
		&status, &org.ConversionsCount, &last, &created, &update)
	if err != nil {
		return nil, err
	}
	org.Status = models.OrganizationStatus(status)
	org.LastActivity = time.UnixMilli(last)
	org.CreatedAt = time.UnixMilli(created)
	org.UpdatedAt = time.UnixMilli(update)
	return &org, nil
}
