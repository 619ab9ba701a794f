package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/orgstate/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: ResourceRepository implements domain.ResourceRepository.
var _ domain.ResourceRepository = (*ResourceRepository)(nil)

// ResourceRepository implements domain.ResourceRepository using SQLite.
type ResourceRepository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*ResourceRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes writers, which is what the flag swap relies
	// on, and keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := Configure(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewFromDB(db)
}

// Configure applies the pragmas every connection to the store needs.
func Configure(db *sql.DB) error {
	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}

	return nil
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*ResourceRepository, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &ResourceRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *ResourceRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *ResourceRepository) DB() *sql.DB {
	return r.db
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Fixed-width so that lexical order matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const resourceColumns = `id, kind, organization_id, scope_key, name, status, flagged, created_at, updated_at`

func (r *ResourceRepository) Create(ctx context.Context, res domain.Resource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, string(res.Kind), res.OrganizationID, res.ScopeKey, res.Name,
		string(res.Status), res.Flagged,
		res.CreatedAt.UTC().Format(timeFormat),
		res.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return mapError("inserting resource", err)
	}
	return nil
}

func (r *ResourceRepository) Get(ctx context.Context, kind domain.Kind, organizationID, id string) (domain.Resource, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE kind = ? AND organization_id = ? AND id = ?`,
		string(kind), organizationID, id,
	)

	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Resource{}, &domain.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return domain.Resource{}, mapError("scanning resource", err)
	}
	return res, nil
}

func (r *ResourceRepository) GetMany(ctx context.Context, kind domain.Kind, organizationID string, ids []string) ([]domain.Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{string(kind), organizationID}
	args = append(args, stringArgs(ids)...)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE kind = ? AND organization_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, mapError("loading resources", err)
	}
	defer rows.Close()

	return collect(rows)
}

// sortColumns whitelists the columns a list may be ordered by.
var sortColumns = map[domain.SortField]string{
	domain.SortByName:      "name",
	domain.SortByStatus:    "status",
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
}

func (r *ResourceRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE kind = ? AND organization_id = ?`
	args := []any{string(filter.Kind), filter.OrganizationID}

	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}

	if filter.Search != "" {
		query += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	query += ` ORDER BY ` + column + ` ` + direction + `, id ` + direction

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("listing resources", err)
	}
	defer rows.Close()

	return collect(rows)
}

// UpdateStatus moves ids to status. Rows entering a status that may not hold
// the kind's singleton flag lose it in the same statement.
func (r *ResourceRepository) UpdateStatus(ctx context.Context, kind domain.Kind, organizationID string, ids []string, status domain.Status) error {
	if len(ids) == 0 {
		return nil
	}

	spec, _ := domain.Lookup(kind)
	keepFlag := spec.FlagEligible(status)

	args := []any{string(status), keepFlag, time.Now().UTC().Format(timeFormat), string(kind), organizationID}
	args = append(args, stringArgs(ids)...)

	_, err := r.db.ExecContext(ctx,
		`UPDATE resources SET status = ?, flagged = flagged AND ?, updated_at = ?
		 WHERE kind = ? AND organization_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return mapError("updating status", err)
	}
	return nil
}

func (r *ResourceRepository) CountSiblings(ctx context.Context, q domain.SiblingQuery) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resources
		 WHERE kind = ? AND organization_id = ? AND scope_key = ? AND status = ? AND id <> ?`,
		string(q.Kind), q.OrganizationID, q.ScopeKey, string(q.Status), q.ExcludeID,
	).Scan(&n)
	if err != nil {
		return 0, mapError("counting siblings", err)
	}
	return n, nil
}

// SwapFlag clears the flag on every sibling in the scope and sets it on the
// target inside one transaction. The target update is conditioned on its
// status still being eligible; if it no longer is, nothing is written and a
// ConflictError is returned.
func (r *ResourceRepository) SwapFlag(ctx context.Context, swap domain.FlagSwap) (result domain.FlagSwapResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FlagSwapResult{}, mapError("beginning flag transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scope := []any{string(swap.Kind), swap.OrganizationID, swap.ScopeKey, swap.TargetID}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE kind = ? AND organization_id = ? AND scope_key = ? AND flagged = 1 AND id <> ?`,
		scope...,
	)
	if err != nil {
		return domain.FlagSwapResult{}, mapError("reading flag holders", err)
	}
	previous, err := collect(rows)
	rows.Close()
	if err != nil {
		return domain.FlagSwapResult{}, err
	}

	now := time.Now().UTC().Format(timeFormat)

	if _, err = tx.ExecContext(ctx,
		`UPDATE resources SET flagged = 0, updated_at = ?
		 WHERE kind = ? AND organization_id = ? AND scope_key = ? AND flagged = 1 AND id <> ?`,
		append([]any{now}, scope...)...,
	); err != nil {
		return domain.FlagSwapResult{}, mapError("clearing flag", err)
	}

	args := append([]any{now}, scope...)
	for _, s := range swap.Eligible {
		args = append(args, string(s))
	}
	statusClause := ""
	if len(swap.Eligible) > 0 {
		statusClause = ` AND status IN (` + placeholders(len(swap.Eligible)) + `)`
	}

	update, err := tx.ExecContext(ctx,
		`UPDATE resources SET flagged = 1, updated_at = ?
		 WHERE kind = ? AND organization_id = ? AND scope_key = ? AND id = ?`+statusClause,
		args...,
	)
	if err != nil {
		return domain.FlagSwapResult{}, mapError("setting flag", err)
	}

	n, err := update.RowsAffected()
	if err != nil {
		return domain.FlagSwapResult{}, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		err = &domain.ConflictError{Reason: fmt.Sprintf("%s %q changed before the flag could be set", swap.Kind, swap.TargetID)}
		return domain.FlagSwapResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.FlagSwapResult{}, mapError("committing flag transaction", err)
	}

	return domain.FlagSwapResult{Previous: previous}, nil
}

func (r *ResourceRepository) Delete(ctx context.Context, kind domain.Kind, organizationID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM resources WHERE kind = ? AND organization_id = ? AND id = ?`,
		string(kind), organizationID, id,
	)
	if err != nil {
		return mapError("deleting resource", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (domain.Resource, error) {
	var res domain.Resource
	var kind, status, createdAt, updatedAt string

	err := s.Scan(&res.ID, &kind, &res.OrganizationID, &res.ScopeKey, &res.Name,
		&status, &res.Flagged, &createdAt, &updatedAt)
	if err != nil {
		return domain.Resource{}, err
	}

	res.Kind = domain.Kind(kind)
	res.Status = domain.Status(status)
	res.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	res.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return res, nil
}

func collect(rows *sql.Rows) ([]domain.Resource, error) {
	var out []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource row: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// mapError translates driver errors into the domain taxonomy.
func mapError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return &domain.ConflictError{Reason: op + ": " + err.Error()}
	case isBusy(err):
		return &domain.TransientError{Err: fmt.Errorf("%s: %w", op, err)}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusy checks if a SQLite error means the database was locked by another writer.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
