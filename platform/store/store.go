// Package store persists training job and endpoint metadata in an embedded
// SQLite database, so platform state survives process restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skiffml/skiff/pkg/errors"
)

// JobRecord is the persisted view of a training job. Status values are
// owned by the training service.
type JobRecord struct {
	Name            string
	Status          string
	ImageURI        string
	HyperParameters map[string]string
	InputChannels   map[string]string
	OutputPrefix    string
	InstanceType    string
	InstanceCount   int
	ArtifactKey     string
	FinalMetric     float64
	FailureReason   string
	CreatedAt       time.Time
	EndedAt         time.Time
}

// EndpointRecord is the persisted view of a hosted endpoint.
type EndpointRecord struct {
	Name          string
	Status        string
	ImageURI      string
	ArtifactKey   string
	URL           string
	FailureReason string
	CreatedAt     time.Time
}

// Metadata is the SQLite-backed metadata store.
type Metadata struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS training_jobs (
	name            TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	image_uri       TEXT NOT NULL,
	hyperparameters TEXT NOT NULL,
	input_channels  TEXT NOT NULL,
	output_prefix   TEXT NOT NULL,
	instance_type   TEXT NOT NULL,
	instance_count  INTEGER NOT NULL,
	artifact_key    TEXT NOT NULL DEFAULT '',
	final_metric    REAL NOT NULL DEFAULT 0,
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	ended_at        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS endpoints (
	name           TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	image_uri      TEXT NOT NULL,
	artifact_key   TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);
`

// Open opens (and migrates) the metadata database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Metadata, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening metadata db %q", path)
	}
	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating metadata db")
	}
	return &Metadata{db: db}, nil
}

// Close closes the underlying database.
func (m *Metadata) Close() error {
	return errors.WithStack(m.db.Close())
}

// CreateJob inserts a new job record. A record with the same name yields
// ErrJobAlreadyExists.
func (m *Metadata) CreateJob(ctx context.Context, rec *JobRecord) error {
	hp, err := json.Marshal(rec.HyperParameters)
	if err != nil {
		return errors.Wrap(err, "encoding hyperparameters")
	}
	ch, err := json.Marshal(rec.InputChannels)
	if err != nil {
		return errors.Wrap(err, "encoding input channels")
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO training_jobs
			(name, status, image_uri, hyperparameters, input_channels,
			 output_prefix, instance_type, instance_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Status, rec.ImageURI, string(hp), string(ch),
		rec.OutputPrefix, rec.InstanceType, rec.InstanceCount,
		rec.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return errors.Wrapf(errors.ErrJobAlreadyExists, "job %q", rec.Name)
	}
	if err != nil {
		return errors.Wrapf(err, "inserting job %q", rec.Name)
	}
	return nil
}

// UpdateJob overwrites the mutable fields of an existing job record.
func (m *Metadata) UpdateJob(ctx context.Context, rec *JobRecord) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE training_jobs
		SET status = ?, artifact_key = ?, final_metric = ?,
		    failure_reason = ?, ended_at = ?
		WHERE name = ?`,
		rec.Status, rec.ArtifactKey, rec.FinalMetric,
		rec.FailureReason, unixOrZero(rec.EndedAt), rec.Name)
	if err != nil {
		return errors.Wrapf(err, "updating job %q", rec.Name)
	}
	return requireRow(res, "training job", rec.Name)
}

// FinalizeJob writes the terminal fields of a job in one statement,
// guarded on the job still being in fromStatus. It returns false when a
// concurrent writer finalized the job first, for example a stop racing
// job completion.
func (m *Metadata) FinalizeJob(ctx context.Context, rec *JobRecord, fromStatus string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE training_jobs
		SET status = ?, artifact_key = ?, final_metric = ?,
		    failure_reason = ?, ended_at = ?
		WHERE name = ? AND status = ?`,
		rec.Status, rec.ArtifactKey, rec.FinalMetric,
		rec.FailureReason, unixOrZero(rec.EndedAt), rec.Name, fromStatus)
	if err != nil {
		return false, errors.Wrapf(err, "finalizing job %q", rec.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "finalizing job %q", rec.Name)
	}
	return n > 0, nil
}

// GetJob fetches a job record by name.
func (m *Metadata) GetJob(ctx context.Context, name string) (*JobRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT name, status, image_uri, hyperparameters, input_channels,
		       output_prefix, instance_type, instance_count, artifact_key,
		       final_metric, failure_reason, created_at, ended_at
		FROM training_jobs WHERE name = ?`, name)

	var rec JobRecord
	var hp, ch string
	var created, ended int64
	err := row.Scan(&rec.Name, &rec.Status, &rec.ImageURI, &hp, &ch,
		&rec.OutputPrefix, &rec.InstanceType, &rec.InstanceCount,
		&rec.ArtifactKey, &rec.FinalMetric, &rec.FailureReason,
		&created, &ended)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("training job", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching job %q", name)
	}
	if err := json.Unmarshal([]byte(hp), &rec.HyperParameters); err != nil {
		return nil, errors.Wrapf(err, "decoding hyperparameters of job %q", name)
	}
	if err := json.Unmarshal([]byte(ch), &rec.InputChannels); err != nil {
		return nil, errors.Wrapf(err, "decoding input channels of job %q", name)
	}
	rec.CreatedAt = time.Unix(0, created)
	if ended != 0 {
		rec.EndedAt = time.Unix(0, ended)
	}
	return &rec, nil
}

// ListJobs returns all job names, newest first.
func (m *Metadata) ListJobs(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT name FROM training_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scanning job name")
		}
		names = append(names, name)
	}
	return names, errors.WithStack(rows.Err())
}

// CreateEndpoint inserts a new endpoint record. A record with the same name
// yields ErrEndpointAlreadyExists.
func (m *Metadata) CreateEndpoint(ctx context.Context, rec *EndpointRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO endpoints
			(name, status, image_uri, artifact_key, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Status, rec.ImageURI, rec.ArtifactKey, rec.URL,
		rec.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return errors.Wrapf(errors.ErrEndpointAlreadyExists, "endpoint %q", rec.Name)
	}
	if err != nil {
		return errors.Wrapf(err, "inserting endpoint %q", rec.Name)
	}
	return nil
}

// UpdateEndpoint overwrites the mutable fields of an endpoint record.
func (m *Metadata) UpdateEndpoint(ctx context.Context, rec *EndpointRecord) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE endpoints
		SET status = ?, url = ?, failure_reason = ?
		WHERE name = ?`,
		rec.Status, rec.URL, rec.FailureReason, rec.Name)
	if err != nil {
		return errors.Wrapf(err, "updating endpoint %q", rec.Name)
	}
	return requireRow(res, "endpoint", rec.Name)
}

// GetEndpoint fetches an endpoint record by name.
func (m *Metadata) GetEndpoint(ctx context.Context, name string) (*EndpointRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT name, status, image_uri, artifact_key, url, failure_reason,
		       created_at
		FROM endpoints WHERE name = ?`, name)

	var rec EndpointRecord
	var created int64
	err := row.Scan(&rec.Name, &rec.Status, &rec.ImageURI, &rec.ArtifactKey,
		&rec.URL, &rec.FailureReason, &created)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("endpoint", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching endpoint %q", name)
	}
	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}

// DeleteEndpoint removes an endpoint record; missing records yield a
// NotFoundError.
func (m *Metadata) DeleteEndpoint(ctx context.Context, name string) error {
	res, err := m.db.ExecContext(ctx,
		`DELETE FROM endpoints WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "deleting endpoint %q", name)
	}
	return requireRow(res, "endpoint", name)
}

func requireRow(res sql.Result, resource, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "checking affected rows for %s %q", resource, name)
	}
	if n == 0 {
		return errors.NewNotFoundError(resource, name)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint failures in the message; the
	// driver's error type does not export a stable code accessor across
	// versions, so match on the SQLite error text.
	return strings.Contains(err.Error(), "constraint failed")
}
