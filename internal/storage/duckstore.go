package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
	"github.com/marker-map/backend/internal/logging"
	"github.com/marker-map/backend/internal/models"
	"github.com/rs/zerolog"
)

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS marker_seq START 1`,
	`CREATE TABLE IF NOT EXISTS markers (
	id         VARCHAR PRIMARY KEY,
	seq        BIGINT NOT NULL DEFAULT nextval('marker_seq'),
	lat        DOUBLE NOT NULL,
	lng        DOUBLE NOT NULL,
	content    VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (lat, lng)
	)`,
}

// Options configures a DuckStore.
type Options struct {
	// Path is the database file. Empty opens an in-memory database.
	Path        string
	Threads     int
	MemoryLimit string
	// Now supplies creation timestamps. Defaults to time.Now.
	Now func() time.Time
}

// DuckStore implements MarkerStore on a DuckDB table. Position uniqueness is
// a table constraint, so concurrent creates are arbitrated by DuckDB.
type DuckStore struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger zerolog.Logger
}

// NewDuckStore opens (or creates) the marker database and ensures the schema.
func NewDuckStore(ctx context.Context, opts Options) (*DuckStore, error) {
	logger := logging.With("duckstore")

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	var pragmas []string
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")

	connector, err := duckdb.NewConnector(opts.Path, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("executing %q: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	path := opts.Path
	if path == "" {
		path = ":memory:"
	}
	logger.Info().Str("path", path).Msg("marker database ready")

	return &DuckStore{db: db, path: path, now: now, logger: logger}, nil
}

// Create inserts a marker with a fresh id and timestamp in one statement.
func (s *DuckStore) Create(ctx context.Context, draft models.Draft) (*models.Marker, error) {
	marker := &models.Marker{
		ID:       uuid.New().String(),
		Position: draft.Position,
		Content:  draft.Content,
		// DuckDB timestamps carry microseconds
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (id, lat, lng, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		marker.ID, marker.Position.Lat, marker.Position.Lng, marker.Content, marker.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateKeyError{Position: draft.Position, Err: err}
		}
		s.logger.Error().Err(err).Msg("insert marker failed")
		return nil, &StoreError{Op: "create marker", Err: err}
	}

	return marker, nil
}

// ListAll returns every marker ordered by creation time, newest first.
func (s *DuckStore) ListAll(ctx context.Context) ([]*models.Marker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lng, content, created_at FROM markers ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, &StoreError{Op: "list markers", Err: err}
	}
	defer rows.Close()

	markers := make([]*models.Marker, 0)
	for rows.Next() {
		var m models.Marker
		if err := rows.Scan(&m.ID, &m.Position.Lat, &m.Position.Lng, &m.Content, &m.CreatedAt); err != nil {
			return nil, &StoreError{Op: "scan marker", Err: err}
		}
		m.CreatedAt = m.CreatedAt.UTC()
		markers = append(markers, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list markers", Err: err}
	}

	return markers, nil
}

// Ping checks that the database is reachable.
func (s *DuckStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the database.
func (s *DuckStore) Close() error {
	s.logger.Info().Str("path", s.path).Msg("closing marker database")
	return s.db.Close()
}

// isUniqueViolation reports whether err is a duplicate key on the markers
// table. A losing concurrent commit reports the same violation wrapped in a
// transaction error, so the message decides rather than the error type.
// NOT NULL and CHECK failures are constraint errors too and are excluded.
func isUniqueViolation(err error) bool {
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) && duckErr.Type != duckdb.ErrorTypeConstraint &&
		duckErr.Type != duckdb.ErrorTypeTransaction {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "duplicate key") && !strings.Contains(msg, "primary key or unique") {
		return false
	}
	// an id collision is a storage fault, not a taken position
	return !strings.Contains(msg, `key "id:`)
}
