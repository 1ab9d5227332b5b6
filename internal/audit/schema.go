package audit

import (
	"database/sql"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS decisions (
	       id           TEXT PRIMARY KEY,
	       timestamp    INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       data_type    TEXT NOT NULL,
	       tier         TEXT NOT NULL,
	       mode         TEXT NOT NULL,
	       base_ms      INTEGER NOT NULL CHECK (typeof(base_ms) = 'integer'),
	       final_ms     INTEGER NOT NULL CHECK (typeof(final_ms) = 'integer'),
	       clamped      INTEGER NOT NULL CHECK (clamped IN (0, 1)),
	       suspended    INTEGER NOT NULL CHECK (suspended IN (0, 1)),
	       reason       TEXT NOT NULL,
	       factors      TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_decisions_type_time
	       ON decisions (data_type, timestamp);
	   CREATE TABLE IF NOT EXISTS mode_transitions (
	       id          TEXT PRIMARY KEY,
	       at          INTEGER NOT NULL CHECK (typeof(at) = 'integer'),
	       from_mode   TEXT NOT NULL,
	       to_mode     TEXT NOT NULL,
	       reasons     TEXT NOT NULL
	   );`

	insertDecisionSQL = `
    INSERT INTO decisions (
        id, timestamp, data_type, tier, mode,
        base_ms, final_ms, clamped, suspended, reason, factors
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertTransitionSQL = `
    INSERT INTO mode_transitions (id, at, from_mode, to_mode, reasons)
    VALUES (?, ?, ?, ?, ?)`

	selectDecisionsSQL = `
    SELECT id, timestamp, data_type, tier, mode,
           base_ms, final_ms, clamped, suspended, reason, factors
    FROM decisions
    WHERE (? = '' OR data_type = ?)
    ORDER BY timestamp DESC, rowid DESC
    LIMIT ?`

	selectTransitionsSQL = `
    SELECT id, at, from_mode, to_mode, reasons
    FROM mode_transitions
    ORDER BY at DESC, rowid DESC
    LIMIT ?`
)

var schemaTables = []string{"decisions", "mode_transitions", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating audit database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Audit schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, or 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
