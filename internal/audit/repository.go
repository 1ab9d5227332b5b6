package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
}

// NewRepository opens (or creates) the SQLite audit store at cfg.DBPath.
func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Audit repository initialized")

	return &repository{db: db, logger: log}, nil
}

func (r *repository) Store(ctx context.Context, batch Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	if err := storeDecisions(ctx, tx, batch.Decisions); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	if err := storeTransitions(ctx, tx, batch.Transitions); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().
		Int("decisions", len(batch.Decisions)).
		Int("transitions", len(batch.Transitions)).
		Msg("Flushed audit records")

	return nil
}

func storeDecisions(ctx context.Context, tx *sql.Tx, decisions []decision.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertDecisionSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range decisions {
		factors, err := json.Marshal(d.Factors)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID.String(),
			d.Timestamp.UnixNano(),
			d.DataType,
			d.Tier.String(),
			d.Mode.String(),
			int64(d.BaseMsUsed),
			int64(d.FinalMs),
			boolToInt(d.Clamped),
			boolToInt(d.Suspended),
			d.Reason,
			string(factors),
		); err != nil {
			return err
		}
	}
	return nil
}

func storeTransitions(ctx context.Context, tx *sql.Tx, transitions []mode.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertTransitionSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range transitions {
		reasons, err := json.Marshal(nonNil(t.Reasons))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			t.ID.String(),
			t.At.UnixNano(),
			t.From.String(),
			t.To.String(),
			string(reasons),
		); err != nil {
			return err
		}
	}
	return nil
}

// RecentDecisions returns stored decisions newest first. An empty dataType
// matches every type.
func (r *repository) RecentDecisions(ctx context.Context, dataType string, limit int) ([]decision.Decision, error) {
	if limit <= 0 {
		return []decision.Decision{}, nil
	}
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectDecisionsSQL, dataType, dataType, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	out := make([]decision.Decision, 0, limit)
	for rows.Next() {
		var (
			d                   decision.Decision
			id, tierName, kind  string
			factors             string
			ts, baseMs, finalMs int64
			clamped, suspended  int
		)
		if err := rows.Scan(&id, &ts, &d.DataType, &tierName, &kind,
			&baseMs, &finalMs, &clamped, &suspended, &d.Reason, &factors); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		t, ok := tier.Parse(tierName)
		if !ok {
			return nil, errFactory.WithMessage(ErrStorageAccess, "unknown tier "+tierName)
		}
		d.Tier = t
		if err := d.Mode.UnmarshalText([]byte(kind)); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if err := json.Unmarshal([]byte(factors), &d.Factors); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		d.Timestamp = time.Unix(0, ts).UTC()
		d.BaseMsUsed = uint64(baseMs)
		d.FinalMs = uint64(finalMs)
		d.Clamped = clamped == 1
		d.Suspended = suspended == 1
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	return out, nil
}

// Transitions returns stored mode transitions newest first.
func (r *repository) Transitions(ctx context.Context, limit int) ([]mode.Transition, error) {
	if limit <= 0 {
		return []mode.Transition{}, nil
	}
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectTransitionsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	out := make([]mode.Transition, 0, limit)
	for rows.Next() {
		var (
			t                 mode.Transition
			id, from, to, why string
			at                int64
		)
		if err := rows.Scan(&id, &at, &from, &to, &why); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if err := t.From.UnmarshalText([]byte(from)); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if err := t.To.UnmarshalText([]byte(to)); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if err := json.Unmarshal([]byte(why), &t.Reasons); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if len(t.Reasons) == 0 {
			t.Reasons = nil
		}
		t.At = time.Unix(0, at).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	return out, nil
}

func (r *repository) Close() error {
	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Audit repository closed")
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
