// Package history persists finished conversion jobs in DuckDB and answers
// the dashboard's aggregate queries.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/akabaki/saas-ui/internal/models"
)

// DuckStore stores conversion jobs in a DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string

	// Semaphore to limit concurrent queries
	querySem chan struct{}
}

// ListParams filters and pages the job history.
type ListParams struct {
	Status         models.JobStatus
	OutputFormat   string
	OrganizationID string
	Search         string // matched against file names
	Limit          int
	Offset         int
}

// Open creates or opens the history database at dbPath.
// An empty path keeps the database in memory.
func Open(dbPath string) (*DuckStore, error) {
	fmt.Printf("[DuckStore] Opening history database at: %q\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[DuckStore] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id              VARCHAR PRIMARY KEY,
			batch_id        VARCHAR NOT NULL,
			file_name       VARCHAR NOT NULL,
			status          VARCHAR NOT NULL,
			input_format    VARCHAR NOT NULL,
			output_format   VARCHAR NOT NULL,
			record_count    BIGINT NOT NULL,
			artifact_id     VARCHAR,
			organization_id VARCHAR,
			error           VARCHAR,
			created_at      TIMESTAMP NOT NULL,
			completed_at    TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &DuckStore{
		db:       db,
		dbPath:   dbPath,
		querySem: make(chan struct{}, 3),
	}, nil
}

// Record inserts or replaces a job.
func (ds *DuckStore) Record(ctx context.Context, job models.ConversionJob) error {
	_, err := ds.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (
			id, batch_id, file_name, status, input_format, output_format,
			record_count, artifact_id, organization_id, error, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.BatchID,
		job.FileName,
		string(job.Status),
		job.InputFormat,
		job.OutputFormat,
		int64(job.RecordCount),
		job.ArtifactID,
		job.OrganizationID,
		job.Error,
		job.CreatedAt.UTC(),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("recording job %s: %w", job.ID, err)
	}
	return nil
}

func (ds *DuckStore) acquire(ctx context.Context) (func(), error) {
	select {
	case ds.querySem <- struct{}{}:
		return func() { <-ds.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns matching jobs, newest first, and the total number of matches.
func (ds *DuckStore) List(ctx context.Context, params ListParams) ([]models.ConversionJob, int, error) {
	release, err := ds.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	where, args := buildWhereClause(params)

	countQuery := "SELECT COUNT(*) FROM jobs"
	if where != "" {
		countQuery += " WHERE " + where
	}
	var total int
	if err := ds.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}
	if total == 0 {
		return []models.ConversionJob{}, 0, nil
	}

	query := `SELECT id, batch_id, file_name, status, input_format, output_format, record_count,
		COALESCE(artifact_id, ''), COALESCE(organization_id, ''), COALESCE(error, ''), created_at, completed_at
		FROM jobs`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC, id"

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(params.Offset, 0))

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.ConversionJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Get returns one job by id.
func (ds *DuckStore) Get(ctx context.Context, id string) (models.ConversionJob, bool, error) {
	row := ds.db.QueryRowContext(ctx, `SELECT id, batch_id, file_name, status, input_format, output_format, record_count,
		COALESCE(artifact_id, ''), COALESCE(organization_id, ''), COALESCE(error, ''), created_at, completed_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return models.ConversionJob{}, false, nil
	}
	if err != nil {
		return models.ConversionJob{}, false, err
	}
	return job, true, nil
}

// Stats aggregates the whole history for the dashboard.
func (ds *DuckStore) Stats(ctx context.Context) (*models.DashboardStats, error) {
	release, err := ds.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := &models.DashboardStats{ByFormat: map[string]int{}}
	err = ds.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			CAST(COALESCE(SUM(record_count) FILTER (WHERE status = 'completed'), 0) AS BIGINT)
		FROM jobs`).Scan(&stats.TotalJobs, &stats.Completed, &stats.Failed, &stats.Processing, &stats.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	rows, err := ds.db.QueryContext(ctx, "SELECT output_format, COUNT(*) FROM jobs GROUP BY output_format ORDER BY output_format")
	if err != nil {
		return nil, fmt.Errorf("format query failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var format string
		var n int
		if err := rows.Scan(&format, &n); err != nil {
			return nil, err
		}
		stats.ByFormat[format] = n
	}
	return stats, rows.Err()
}

// Prune deletes finished jobs that completed before cutoff.
func (ds *DuckStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := ds.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE completed_at IS NOT NULL AND completed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database. The file is kept.
func (ds *DuckStore) Close() error {
	if ds.db != nil {
		return ds.db.Close()
	}
	return nil
}

func buildWhereClause(params ListParams) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if params.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(params.Status))
	}
	if params.OutputFormat != "" {
		clauses = append(clauses, "output_format = ?")
		args = append(args, strings.ToUpper(params.OutputFormat))
	}
	if params.OrganizationID != "" {
		clauses = append(clauses, "organization_id = ?")
		args = append(args, params.OrganizationID)
	}
	if params.Search != "" {
		clauses = append(clauses, "file_name ILIKE ?")
		args = append(args, "%"+params.Search+"%")
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (models.ConversionJob, error) {
	var (
		job         models.ConversionJob
		status      string
		records     int64
		completedAt sql.NullTime
	)
	err := r.Scan(&job.ID, &job.BatchID, &job.FileName, &status, &job.InputFormat, &job.OutputFormat,
		&records, &job.ArtifactID, &job.OrganizationID, &job.Error, &job.CreatedAt, &completedAt)
	if err != nil {
		return job, err
	}
	job.Status = models.JobStatus(status)
	job.RecordCount = int(records)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
