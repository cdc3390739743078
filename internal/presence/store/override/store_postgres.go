package override

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"residency/internal/presence/conflict"
	"residency/internal/presence/models"
	id "residency/pkg/domain"
	"residency/pkg/platform/sentinel"
	txcontext "residency/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const (
	upsertOverride = `INSERT INTO presence_overrides (user_id, date, attribution, country, conflict_id, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, date, attribution)
DO UPDATE SET country = EXCLUDED.country, conflict_id = EXCLUDED.conflict_id, resolved_at = EXCLUDED.resolved_at`

	bumpRevision = `INSERT INTO presence_override_revisions (user_id, revision)
VALUES ($1, 1)
ON CONFLICT (user_id)
DO UPDATE SET revision = presence_override_revisions.revision + 1
RETURNING revision`

	selectOverrides = `SELECT date, attribution, country, conflict_id, resolved_at
FROM presence_overrides WHERE user_id = $1 ORDER BY date, attribution`

	selectRevision = `SELECT revision FROM presence_override_revisions WHERE user_id = $1`

	insertConflict = `INSERT INTO presence_conflicts (user_id, conflict_id, date, attribution, candidates)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, conflict_id) DO NOTHING`

	selectConflict = `SELECT date, attribution, candidates
FROM presence_conflicts WHERE user_id = $1 AND conflict_id = $2`
)

// PostgresStore persists pins in PostgreSQL. Writes join a transaction
// carried in the context by pkg/platform/tx, or open their own.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed override store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the store's tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate override schema: %w", err)
	}
	return nil
}

// RunInTx runs fn with a transaction on its context. Store calls made with
// that context join it. When ctx already carries a transaction fn joins
// that one and the caller commits.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		tx, _ := txcontext.From(ctx)
		return fn(tx)
	})
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn reads through the context's transaction when there is one.
func (s *PostgresStore) conn(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Save upserts a pin and returns the user's new revision.
func (s *PostgresStore) Save(ctx context.Context, userID id.UserID, o conflict.Override) (int64, error) {
	var revision int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertOverride,
			userID.String(), o.Date.String(), o.Attribution.String(),
			o.Country.String(), o.ConflictID.String(), o.ResolvedAt.UTC(),
		); err != nil {
			return fmt.Errorf("save override: %w", err)
		}
		if err := tx.QueryRowContext(ctx, bumpRevision, userID.String()).Scan(&revision); err != nil {
			return fmt.Errorf("bump override revision: %w", err)
		}
		return nil
	})
	return revision, err
}

// List returns the user's pins ordered by date, then attribution.
func (s *PostgresStore) List(ctx context.Context, userID id.UserID) ([]conflict.Override, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, selectOverrides, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	out := []conflict.Override{}
	for rows.Next() {
		var (
			date        time.Time
			attribution string
			country     string
			conflictID  string
			resolvedAt  time.Time
		)
		if err := rows.Scan(&date, &attribution, &country, &conflictID, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		cid, err := uuid.Parse(conflictID)
		if err != nil {
			return nil, fmt.Errorf("scan override conflict id: %w", err)
		}
		out = append(out, conflict.Override{
			ConflictID:  id.ConflictID(cid),
			Date:        civil.DateOf(date),
			Attribution: models.Attribution(attribution),
			Country:     id.CountryCode(country),
			ResolvedAt:  resolvedAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return out, nil
}

// Revision returns the number of pins ever saved for the user.
func (s *PostgresStore) Revision(ctx context.Context, userID id.UserID) (int64, error) {
	var revision int64
	err := s.conn(ctx).QueryRowContext(ctx, selectRevision, userID.String()).Scan(&revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("find override revision: %w", err)
	}
	return revision, nil
}

// RecordConflicts remembers conflicts shown to the user. Known ids are
// left untouched.
func (s *PostgresStore) RecordConflicts(ctx context.Context, userID id.UserID, refs []ConflictRef) error {
	if len(refs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertConflict)
		if err != nil {
			return fmt.Errorf("prepare conflict insert: %w", err)
		}
		defer stmt.Close()
		for _, ref := range refs {
			cands := make([]string, len(ref.Candidates))
			for i, c := range ref.Candidates {
				cands[i] = c.String()
			}
			if _, err := stmt.ExecContext(ctx,
				userID.String(), ref.ID.String(), ref.Date.String(),
				ref.Attribution.String(), pq.Array(cands),
			); err != nil {
				return fmt.Errorf("record conflict %s: %w", ref.ID, err)
			}
		}
		return nil
	})
}

// FindConflict returns a recorded conflict or sentinel.ErrNotFound.
func (s *PostgresStore) FindConflict(ctx context.Context, userID id.UserID, conflictID id.ConflictID) (ConflictRef, error) {
	var (
		date        time.Time
		attribution string
		cands       []string
	)
	err := s.conn(ctx).QueryRowContext(ctx, selectConflict, userID.String(), conflictID.String()).
		Scan(&date, &attribution, pq.Array(&cands))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConflictRef{}, sentinel.ErrNotFound
		}
		return ConflictRef{}, fmt.Errorf("find conflict: %w", err)
	}
	ref := ConflictRef{
		ID:          conflictID,
		Date:        civil.DateOf(date),
		Attribution: models.Attribution(attribution),
		Candidates:  make([]id.CountryCode, len(cands)),
	}
	for i, c := range cands {
		ref.Candidates[i] = id.CountryCode(c)
	}
	return ref, nil
}
