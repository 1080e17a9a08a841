// Package storage keeps the staging ledger in a local SQLite file so that it
// survives between CLI invocations, together with a log of what changed.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/staging"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS staged_rows (
  id                    INTEGER PRIMARY KEY,
  project_id            TEXT NOT NULL,
  scope                 INTEGER NOT NULL CHECK (scope IN (1,2,3)),
  row_id                TEXT NOT NULL,
  position              INTEGER NOT NULL,
  server_id             TEXT,
  database_name         TEXT NOT NULL,
  main_category_id      TEXT NOT NULL,
  main_category         TEXT NOT NULL,
  sub_category          TEXT NOT NULL,
  activity              TEXT NOT NULL,
  selection1            TEXT NOT NULL,
  selection2            TEXT NOT NULL,
  unit                  TEXT,
  frequency             TEXT,
  emission_factor       TEXT NOT NULL,
  subcategory_id        TEXT,
  remote_subcategory_id TEXT,
  resolved              INTEGER NOT NULL CHECK (resolved IN (0,1)),
  first_seen_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(project_id, row_id)
);
CREATE INDEX IF NOT EXISTS idx_rows_project ON staged_rows(project_id, scope, position);
CREATE TABLE IF NOT EXISTS staging_changes (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  project_id  TEXT NOT NULL,
  scope       INTEGER NOT NULL,
  row_id      TEXT NOT NULL,
  activity    TEXT NOT NULL,
  change_type TEXT NOT NULL CHECK (change_type IN ('added','updated','removed','committed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON staging_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_project ON staging_changes(project_id, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

const rowColumns = "row_id, server_id, database_name, main_category_id, main_category, sub_category, activity, selection1, selection2, unit, frequency, emission_factor, subcategory_id, remote_subcategory_id, resolved"

// UpsertRows makes the stored rows of project and scope equal to rows, in
// order, and logs an added, updated or removed change for every difference.
func (d *DB) UpsertRows(ctx context.Context, projectID string, scope ghg.Scope, rows []staging.Row) (changes []Change, err error) {
	now := time.Now().UTC()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored, err := queryRows(ctx, tx, "WHERE project_id = ? AND scope = ?", projectID, int(scope))
	if err != nil {
		return nil, err
	}
	existing := make(map[string]staging.Row, len(stored))
	for _, r := range stored {
		existing[r.ID] = r
	}

	seen := make(map[string]bool, len(rows))
	for pos, r := range rows {
		seen[r.ID] = true
		old, existed := existing[r.ID]
		switch {
		case !existed:
			_, err = tx.ExecContext(ctx, `INSERT INTO staged_rows(project_id, scope, position, `+rowColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				append([]interface{}{projectID, int(scope), pos}, rowArgs(r)...)...)
			if err != nil {
				return nil, err
			}
			changes = append(changes, newChange(now, projectID, scope, r, ChangeAdded))
		case fingerprint(old) != fingerprint(r):
			_, err = tx.ExecContext(ctx, `UPDATE staged_rows SET position = ?, server_id = ?, database_name = ?, main_category_id = ?, main_category = ?, sub_category = ?, activity = ?, selection1 = ?, selection2 = ?, unit = ?, frequency = ?, emission_factor = ?, subcategory_id = ?, remote_subcategory_id = ?, resolved = ?, last_seen_at = CURRENT_TIMESTAMP WHERE project_id = ? AND row_id = ?`,
				append(append([]interface{}{pos}, rowArgs(r)[1:]...), projectID, r.ID)...)
			if err != nil {
				return nil, err
			}
			changes = append(changes, newChange(now, projectID, scope, r, ChangeUpdated))
		default:
			_, err = tx.ExecContext(ctx, `UPDATE staged_rows SET position = ?, last_seen_at = CURRENT_TIMESTAMP WHERE project_id = ? AND row_id = ?`, pos, projectID, r.ID)
			if err != nil {
				return nil, err
			}
		}
	}

	// Sweep rows that are no longer staged.
	for _, old := range stored {
		if seen[old.ID] {
			continue
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM staged_rows WHERE project_id = ? AND row_id = ?`, projectID, old.ID); err != nil {
			return nil, err
		}
		changes = append(changes, newChange(now, projectID, scope, old, ChangeRemoved))
	}

	if err = logChanges(ctx, tx, changes); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ClearProject drops every stored row of a committed project and logs them
// as committed.
func (d *DB) ClearProject(ctx context.Context, projectID string) (changes []Change, err error) {
	now := time.Now().UTC()
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored, err := queryRows(ctx, tx, "WHERE project_id = ?", projectID)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM staged_rows WHERE project_id = ?`, projectID); err != nil {
		return nil, err
	}
	for _, r := range stored {
		changes = append(changes, newChange(now, projectID, r.Scope, r, ChangeCommitted))
	}
	if err = logChanges(ctx, tx, changes); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListRows returns the stored rows of a project, scope by scope, in order.
func (d *DB) ListRows(ctx context.Context, projectID string) ([]staging.Row, error) {
	return queryRows(ctx, d.sql, "WHERE project_id = ?", projectID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q querier, where string, args ...interface{}) ([]staging.Row, error) {
	rows, err := q.QueryContext(ctx, "SELECT scope, "+rowColumns+" FROM staged_rows "+where+" ORDER BY scope, position", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []staging.Row
	for rows.Next() {
		var (
			r                                 staging.Row
			scope, resolved                   int
			db, factor                        string
			serverID, unit, freq, sub, remote sql.NullString
		)
		if err := rows.Scan(&scope, &r.ID, &serverID, &db, &r.MainCategoryID, &r.MainCategory, &r.SubCategory,
			&r.Activity, &r.Selection1, &r.Selection2, &unit, &freq, &factor, &sub, &remote, &resolved); err != nil {
			return nil, err
		}
		r.Scope = ghg.Scope(scope)
		r.Database = ghg.Database(db)
		r.ServerID = serverID.String
		r.Unit = unit.String
		r.Frequency = freq.String
		r.SubcategoryID = sub.String
		r.RemoteSubcategoryID = remote.String
		r.Resolved = resolved == 1
		if r.EmissionFactor, err = decimal.NewFromString(factor); err != nil {
			return nil, fmt.Errorf("row %s: bad emission factor %q: %w", r.ID, factor, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func logChanges(ctx context.Context, tx *sql.Tx, changes []Change) error {
	for _, c := range changes {
		_, err := tx.ExecContext(ctx, `INSERT INTO staging_changes(occurred_at, project_id, scope, row_id, activity, change_type) VALUES(CURRENT_TIMESTAMP, ?, ?, ?, ?, ?)`,
			c.ProjectID, int(c.Scope), c.RowID, c.Activity, string(c.ChangeType))
		if err != nil {
			return err
		}
	}
	return nil
}

// ListRecentChanges returns the most recent N changes across all projects.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, project_id, scope, row_id, activity, change_type FROM staging_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c             Change
			occurredAtStr string
			scope         int
			changeType    string
		)
		if err := rows.Scan(&occurredAtStr, &c.ProjectID, &scope, &c.RowID, &c.Activity, &changeType); err != nil {
			return nil, err
		}
		// SQLite CURRENT_TIMESTAMP is "2006-01-02 15:04:05"; the driver may
		// also hand back RFC3339.
		if t, perr := time.Parse("2006-01-02 15:04:05", occurredAtStr); perr == nil {
			c.OccurredAt = t
		} else if t2, perr2 := time.Parse(time.RFC3339, occurredAtStr); perr2 == nil {
			c.OccurredAt = t2
		}
		c.Scope = ghg.Scope(scope)
		c.ChangeType = ChangeType(changeType)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

func (d *DB) GetStats(ctx context.Context) ([]ProjectStats, error) {
	query := `
		SELECT
			project_id,
			scope,
			COUNT(*),
			SUM(CASE WHEN remote_subcategory_id IS NULL OR remote_subcategory_id != subcategory_id OR resolved = 0 THEN 1 ELSE 0 END)
		FROM
			staged_rows
		GROUP BY
			project_id, scope
		ORDER BY
			project_id, scope;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProjectStats
	for rows.Next() {
		var (
			s     ProjectStats
			scope int
		)
		if err := rows.Scan(&s.ProjectID, &scope, &s.RowCount, &s.PendingCount); err != nil {
			return nil, err
		}
		s.Scope = ghg.Scope(scope)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

func rowArgs(r staging.Row) []interface{} {
	return []interface{}{
		r.ID,
		nullIfEmpty(r.ServerID),
		string(r.Database),
		r.MainCategoryID,
		r.MainCategory,
		r.SubCategory,
		r.Activity,
		r.Selection1,
		r.Selection2,
		nullIfEmpty(r.Unit),
		nullIfEmpty(r.Frequency),
		r.EmissionFactor.String(),
		nullIfEmpty(r.SubcategoryID),
		nullIfEmpty(r.RemoteSubcategoryID),
		boolToInt(r.Resolved),
	}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
