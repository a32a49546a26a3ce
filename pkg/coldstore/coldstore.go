// Package coldstore implements the authoritative cold tier from
// spec.md §4.4: a SQLite table of full turn rows plus a standalone
// FTS5 index kept in lockstep with it. Modeled on the teacher's
// SQLite store (pkg/core/store.go), adapted from a vector/embedding
// schema to the cold tier's row+index schema, with modernc.org/sqlite
// as the driver in both.
package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmrproject/dmr/pkg/dmrerr"
)

// Row is one turn as stored in the cold tier.
type Row struct {
	Tenant    string
	User      string
	TurnID    string
	Signature string
	TS        int64
	Text      string
	Rank      float64 // bm25 rank, populated on reads only
}

// errFTSCorruption is the typed sentinel raised internally when a
// search hits a damaged FTS index, per spec.md §4.4 ("catch-string
// matching translated into a typed sentinel error"). Callers never see
// this directly: Store.SearchFTS repairs and retries once before it
// would ever surface.
var errFTSCorruption = errors.New("coldstore: fts5 index corrupted")

// Store is the cold tier: a durable row table plus its FTS5 shadow.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writer transactions; reads use the pool directly
}

// Open creates (or reuses) the SQLite database at path, migrating its
// schema as needed, mirroring the teacher's WAL-tuned DSN in
// pkg/core/store.go.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dmrerr.Wrap("coldstore.open", fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, dmrerr.Wrap("coldstore.open", err)
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cold_rows(
			tenant_id TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			turn_id   TEXT NOT NULL,
			signature TEXT NOT NULL,
			text      TEXT NOT NULL,
			PRIMARY KEY (tenant_id, user_id, turn_id)
		);
	`); err != nil {
		return fmt.Errorf("create cold_rows: %w", err)
	}

	if !s.hasColumn(ctx, "cold_rows", "ts") {
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE cold_rows ADD COLUMN ts REAL NOT NULL DEFAULT 0;"); err != nil {
			return fmt.Errorf("migrate ts column: %w", err)
		}
	}

	// Standalone (non external-content) FTS5 table: avoids the
	// missing-row class of corruption that external-content tables hit
	// when the shadow and content tables drift.
	if _, err := s.db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS cold_fts
		USING fts5(
			tenant_id UNINDEXED,
			user_id   UNINDEXED,
			turn_id   UNINDEXED,
			signature UNINDEXED,
			ts        UNINDEXED,
			text,
			tokenize = 'unicode61'
		);
	`); err != nil {
		return fmt.Errorf("create cold_fts: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS cold_rows_tut ON cold_rows(tenant_id, user_id, ts);"); err != nil {
		return fmt.Errorf("create cold_rows_tut index: %w", err)
	}

	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, col string) bool {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == col {
			return true
		}
	}
	return false
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutMany upserts rows into cold_rows and re-indexes each into
// cold_fts within one transaction, per spec.md §4.4.
func (s *Store) PutMany(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dmrerr.Wrap("coldstore.put_many", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cold_rows(tenant_id,user_id,turn_id,signature,ts,text)
		VALUES(?,?,?,?,?,?);
	`)
	if err != nil {
		return dmrerr.Wrap("coldstore.put_many", err)
	}
	defer upsert.Close()

	delFts, err := tx.PrepareContext(ctx, "DELETE FROM cold_fts WHERE tenant_id=? AND user_id=? AND turn_id=?;")
	if err != nil {
		return dmrerr.Wrap("coldstore.put_many", err)
	}
	defer delFts.Close()

	insFts, err := tx.PrepareContext(ctx, `
		INSERT INTO cold_fts(tenant_id,user_id,turn_id,signature,ts,text)
		VALUES(?,?,?,?,?,?);
	`)
	if err != nil {
		return dmrerr.Wrap("coldstore.put_many", err)
	}
	defer insFts.Close()

	for _, r := range rows {
		if _, err := upsert.ExecContext(ctx, r.Tenant, r.User, r.TurnID, r.Signature, float64(r.TS), r.Text); err != nil {
			return dmrerr.Wrap("coldstore.put_many", err)
		}
		if _, err := delFts.ExecContext(ctx, r.Tenant, r.User, r.TurnID); err != nil {
			return dmrerr.Wrap("coldstore.put_many", err)
		}
		if _, err := insFts.ExecContext(ctx, r.Tenant, r.User, r.TurnID, r.Signature, float64(r.TS), r.Text); err != nil {
			return dmrerr.Wrap("coldstore.put_many", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dmrerr.Wrap("coldstore.put_many", err)
	}
	return nil
}

// RepairFTS rebuilds cold_fts from cold_rows (the source of truth),
// per spec.md §4.4's self-healing contract.
func (s *Store) RepairFTS(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repairFTSLocked(ctx)
}

func (s *Store) repairFTSLocked(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dmrerr.Wrap("coldstore.repair_fts", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cold_fts;"); err != nil {
		return dmrerr.Wrap("coldstore.repair_fts", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cold_fts(tenant_id,user_id,turn_id,signature,ts,text)
		SELECT tenant_id,user_id,turn_id,signature,ts,text FROM cold_rows;
	`); err != nil {
		return dmrerr.Wrap("coldstore.repair_fts", err)
	}
	if err := tx.Commit(); err != nil {
		return dmrerr.Wrap("coldstore.repair_fts", err)
	}
	return nil
}

// SearchFTS runs a BM25-ranked full-text query scoped to (tenant,
// user), stopping early once budgetMs has elapsed (results already
// collected are still returned), per spec.md §4.4 and §4.5's cold-path
// budget. If the FTS index itself is corrupted, it is rebuilt from
// cold_rows and the search is retried exactly once.
func (s *Store) SearchFTS(ctx context.Context, tenant, user, query string, limit int, budgetMs float64) ([]Row, error) {
	rows, err := s.searchFTSOnce(ctx, tenant, user, query, limit, budgetMs)
	if err == nil {
		return rows, nil
	}
	if !errors.Is(err, errFTSCorruption) {
		return nil, dmrerr.Wrap("coldstore.search_fts", err)
	}

	if repairErr := s.RepairFTS(ctx); repairErr != nil {
		return nil, dmrerr.Wrap("coldstore.search_fts", repairErr)
	}
	rows, err = s.searchFTSOnce(ctx, tenant, user, query, limit, budgetMs)
	if err != nil {
		return nil, dmrerr.Wrap("coldstore.search_fts", err)
	}
	return rows, nil
}

func (s *Store) searchFTSOnce(ctx context.Context, tenant, user, query string, limit int, budgetMs float64) ([]Row, error) {
	start := time.Now()

	sqlRows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id,user_id,turn_id,signature,ts,text, bm25(cold_fts) AS rank
		FROM cold_fts
		WHERE cold_fts MATCH ?
		  AND tenant_id = ?
		  AND user_id   = ?
		ORDER BY rank ASC, turn_id ASC
		LIMIT ?;
	`, query, tenant, user, limit)
	if err != nil {
		if isFTSCorruption(err) {
			return nil, errFTSCorruption
		}
		return nil, err
	}
	defer sqlRows.Close()

	var out []Row
	for sqlRows.Next() {
		if time.Since(start).Seconds()*1000.0 > budgetMs {
			break
		}
		var r Row
		var ts float64
		if err := sqlRows.Scan(&r.Tenant, &r.User, &r.TurnID, &r.Signature, &ts, &r.Text, &r.Rank); err != nil {
			if isFTSCorruption(err) {
				return nil, errFTSCorruption
			}
			return nil, err
		}
		r.TS = int64(ts)
		out = append(out, r)
	}
	if err := sqlRows.Err(); err != nil {
		if isFTSCorruption(err) {
			return nil, errFTSCorruption
		}
		return nil, err
	}
	return out, nil
}

// isFTSCorruption recognizes the driver-level error strings that
// indicate a damaged FTS5 shadow table, mirroring the original's
// message-substring check at the SQLite boundary.
func isFTSCorruption(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5:") ||
		strings.Contains(msg, "cold_fts") ||
		strings.Contains(msg, "missing row")
}
