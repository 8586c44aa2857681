package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rentalpipeline/basiccleaning/internal/database"
)

// Version states. Only committed versions are resolvable.
const (
	StatePending   = "pending"
	StateCommitted = "committed"
)

// Lineage directions.
const (
	DirectionUsed     = "used"
	DirectionProduced = "produced"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Version is one row of artifact_versions.
type Version struct {
	ID          int64
	Project     string
	Name        string
	Version     int
	Type        string
	Description string
	FileName    string
	BlobKey     string
	SHA256      string
	Size        int64
	State       string
	CreatedAt   time.Time
	CommittedAt time.Time
}

// Ref returns the explicit reference of this version.
func (v *Version) Ref() Ref {
	return Ref{Name: v.Name, Version: v.Version}
}

// RunRecord is one row of runs.
type RunRecord struct {
	ID         string
	Project    string
	JobType    string
	Config     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// LineageEntry links a run to a version it used or produced.
type LineageEntry struct {
	RunID     string
	VersionID int64
	Direction string
}

const schema = `
CREATE TABLE IF NOT EXISTS artifact_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL,
	name TEXT NOT NULL,
	version INTEGER NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	size INTEGER NOT NULL,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL,
	committed_at TEXT NOT NULL DEFAULT '',
	UNIQUE(project, name, version)
);
CREATE INDEX IF NOT EXISTS idx_versions_name ON artifact_versions(project, name, state);

CREATE TABLE IF NOT EXISTS aliases (
	project TEXT NOT NULL,
	name TEXT NOT NULL,
	alias TEXT NOT NULL,
	version_id INTEGER NOT NULL REFERENCES artifact_versions(id),
	updated_at TEXT NOT NULL,
	PRIMARY KEY(project, name, alias)
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	job_type TEXT NOT NULL,
	config TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS lineage (
	run_id TEXT NOT NULL REFERENCES runs(id),
	version_id INTEGER NOT NULL REFERENCES artifact_versions(id),
	direction TEXT NOT NULL,
	PRIMARY KEY(run_id, version_id, direction)
);
`

// Registry is the SQLite catalogue of artifact versions and runs.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

// OpenRegistry opens (creating if needed) the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	// One connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, database.Classify(err, "open"))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", database.Classify(err, "open"))
	}
	return &Registry{db: db, now: time.Now}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// CreateRun inserts a running run record.
func (r *Registry) CreateRun(ctx context.Context, rec RunRecord) error {
	if rec.Config == "" {
		rec.Config = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, job_type, config, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Project, rec.JobType, rec.Config, RunRunning, r.timestamp())
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", rec.ID, database.Classify(err, "create run"))
	}
	return nil
}

// FinishRun records the final status of a run.
func (r *Registry) FinishRun(ctx context.Context, id, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, database.Classify(err, "finish run"))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetRun loads a run record.
func (r *Registry) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	var started, finished string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project, job_type, config, status, error, started_at, finished_at FROM runs WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Project, &rec.JobType, &rec.Config, &rec.Status, &rec.Error, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
		}
		return nil, err
	}
	rec.StartedAt = parseTimestamp(started)
	rec.FinishedAt = parseTimestamp(finished)
	return &rec, nil
}

// Reserve allocates the next version number for name and inserts it as pending.
// Numbers are allocated inside one transaction and never reused, pending or not.
func (r *Registry) Reserve(ctx context.Context, v Version) (*Version, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM artifact_versions WHERE project = ? AND name = ?`,
		v.Project, v.Name).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last version of %s: %w", v.Name, database.Classify(err, "reserve"))
	}

	v.Version = int(last.Int64) + 1
	v.BlobKey = BlobKey(v.Name, v.Version, v.FileName)
	v.State = StatePending
	created := r.timestamp()
	v.CreatedAt = parseTimestamp(created)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO artifact_versions
			(project, name, version, type, description, file_name, blob_key, sha256, size, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Project, v.Name, v.Version, v.Type, v.Description, v.FileName, v.BlobKey, v.SHA256, v.Size, v.State, created)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %s:v%d: %w", v.Name, v.Version, database.Classify(err, "reserve"))
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Commit marks a pending version committed and points the default alias at it.
func (r *Registry) Commit(ctx context.Context, versionID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var project, name, state string
	if err := tx.QueryRowContext(ctx,
		`SELECT project, name, state FROM artifact_versions WHERE id = ?`, versionID).
		Scan(&project, &name, &state); err != nil {
		return fmt.Errorf("failed to load version %d: %w", versionID, database.Classify(err, "commit"))
	}
	if state == StateCommitted {
		return nil
	}

	now := r.timestamp()
	if _, err := tx.ExecContext(ctx,
		`UPDATE artifact_versions SET state = ?, committed_at = ? WHERE id = ?`,
		StateCommitted, now, versionID); err != nil {
		return fmt.Errorf("failed to commit version %d: %w", versionID, database.Classify(err, "commit"))
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO aliases (project, name, alias, version_id, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project, name, alias) DO UPDATE SET version_id = excluded.version_id, updated_at = excluded.updated_at`,
		project, name, DefaultAlias, versionID, now); err != nil {
		return fmt.Errorf("failed to move alias %s of %s: %w", DefaultAlias, name, database.Classify(err, "commit"))
	}
	return tx.Commit()
}

// Resolve returns the committed version a reference points to.
func (r *Registry) Resolve(ctx context.Context, project string, ref Ref) (*Version, error) {
	var row *sql.Row
	if ref.Version > 0 {
		row = r.db.QueryRowContext(ctx, selectVersion+
			` WHERE v.project = ? AND v.name = ? AND v.version = ? AND v.state = ?`,
			project, ref.Name, ref.Version, StateCommitted)
	} else {
		alias := ref.Alias
		if alias == "" {
			alias = DefaultAlias
		}
		row = r.db.QueryRowContext(ctx, selectVersion+
			` JOIN aliases a ON a.version_id = v.id
			WHERE a.project = ? AND a.name = ? AND a.alias = ? AND v.state = ?`,
			project, ref.Name, alias, StateCommitted)
	}

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, ref)
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, database.Classify(err, "resolve"))
	}
	return v, nil
}

// GetVersion loads a version by id regardless of state.
func (r *Registry) GetVersion(ctx context.Context, id int64) (*Version, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx, selectVersion+` WHERE v.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: version id %d", ErrArtifactNotFound, id)
		}
		return nil, err
	}
	return v, nil
}

// RecordLineage links a run to a version. Recording the same link twice is a no-op.
func (r *Registry) RecordLineage(ctx context.Context, runID string, versionID int64, direction string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lineage (run_id, version_id, direction) VALUES (?, ?, ?)`,
		runID, versionID, direction)
	if err != nil {
		return fmt.Errorf("failed to record %s lineage for run %s: %w", direction, runID, database.Classify(err, "record lineage"))
	}
	return nil
}

// Lineage lists the versions a run used and produced.
func (r *Registry) Lineage(ctx context.Context, runID string) ([]LineageEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, version_id, direction FROM lineage WHERE run_id = ? ORDER BY direction DESC, version_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LineageEntry
	for rows.Next() {
		var e LineageEntry
		if err := rows.Scan(&e.RunID, &e.VersionID, &e.Direction); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const selectVersion = `SELECT v.id, v.project, v.name, v.version, v.type, v.description, v.file_name,
	v.blob_key, v.sha256, v.size, v.state, v.created_at, v.committed_at FROM artifact_versions v`

func scanVersion(row *sql.Row) (*Version, error) {
	var v Version
	var created, committed string
	if err := row.Scan(&v.ID, &v.Project, &v.Name, &v.Version, &v.Type, &v.Description, &v.FileName,
		&v.BlobKey, &v.SHA256, &v.Size, &v.State, &created, &committed); err != nil {
		return nil, err
	}
	v.CreatedAt = parseTimestamp(created)
	v.CommittedAt = parseTimestamp(committed)
	return &v, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
