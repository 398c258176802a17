// Package sqlstore implements store.Store on SQLite (modernc.org/sqlite) and
// PostgreSQL (lib/pq) with one set of queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"billbuddy/internal/core"
	"billbuddy/internal/store"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*Repository)(nil)

// Open connects to the database, applies migrations and returns a ready
// repository. For SQLite dsn is a file path.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) readTxOptions() *sql.TxOptions {
	if r.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

// Snapshot reads both entry lists, the roster and the revision inside one
// transaction.
func (r *Repository) Snapshot(ctx context.Context) (store.State, error) {
	var st store.State

	tx, err := r.db.BeginTx(ctx, r.readTxOptions())
	if err != nil {
		return st, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, r.rebind(`SELECT value FROM state_revision WHERE id = 1`)).Scan(&st.Revision); err != nil {
		return st, fmt.Errorf("read revision: %w", err)
	}
	if st.Equal, err = r.loadEqual(ctx, tx); err != nil {
		return st, err
	}
	if st.Itemized, err = r.loadItemized(ctx, tx); err != nil {
		return st, err
	}
	if st.People, err = r.loadPeople(ctx, tx); err != nil {
		return st, err
	}

	return st, tx.Commit()
}

func (r *Repository) Participants(ctx context.Context) ([]string, error) {
	return r.loadPeople(ctx, r.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) loadEqual(ctx context.Context, q querier) ([]core.EqualSplitEntry, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`SELECT id, label, amount, payer FROM equal_entries ORDER BY seq`))
	if err != nil {
		return nil, fmt.Errorf("list equal entries: %w", err)
	}
	entries := []core.EqualSplitEntry{}
	index := map[string]int{}
	for rows.Next() {
		e := core.EqualSplitEntry{SharedWith: []string{}}
		if err := rows.Scan(&e.ID, &e.Label, &e.Amount, &e.Payer); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan equal entry: %w", err)
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equal entries: %w", err)
	}

	rows, err = q.QueryContext(ctx, r.rebind(`SELECT entry_id, name FROM equal_sharers ORDER BY entry_id, seq`))
	if err != nil {
		return nil, fmt.Errorf("list sharers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entryID, name string
		if err := rows.Scan(&entryID, &name); err != nil {
			return nil, fmt.Errorf("scan sharer: %w", err)
		}
		if i, ok := index[entryID]; ok {
			entries[i].SharedWith = append(entries[i].SharedWith, name)
		}
	}
	return entries, rows.Err()
}

func (r *Repository) loadItemized(ctx context.Context, q querier) ([]core.ItemizedSplitEntry, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`SELECT id, label, amount, payer FROM itemized_entries ORDER BY seq`))
	if err != nil {
		return nil, fmt.Errorf("list itemized entries: %w", err)
	}
	entries := []core.ItemizedSplitEntry{}
	index := map[string]int{}
	for rows.Next() {
		e := core.ItemizedSplitEntry{Costs: []core.ItemizedCost{}}
		if err := rows.Scan(&e.ID, &e.Label, &e.Amount, &e.Payer); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan itemized entry: %w", err)
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate itemized entries: %w", err)
	}

	rows, err = q.QueryContext(ctx, r.rebind(`SELECT entry_id, person, label, cost FROM itemized_costs ORDER BY entry_id, seq`))
	if err != nil {
		return nil, fmt.Errorf("list itemized costs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entryID string
		var c core.ItemizedCost
		if err := rows.Scan(&entryID, &c.Person, &c.Label, &c.Cost); err != nil {
			return nil, fmt.Errorf("scan itemized cost: %w", err)
		}
		if i, ok := index[entryID]; ok {
			entries[i].Costs = append(entries[i].Costs, c)
		}
	}
	return entries, rows.Err()
}

func (r *Repository) loadPeople(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`SELECT name FROM participants ORDER BY seq`))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	people := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		people = append(people, name)
	}
	return people, rows.Err()
}

// mutate runs fn in a write transaction. The revision row is bumped first so
// concurrent writers queue behind its row lock.
func (r *Repository) mutate(ctx context.Context, op string, fn func(tx *sql.Tx) error) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s: %w", op, err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRowContext(ctx, r.rebind(`UPDATE state_revision SET value = value + 1 WHERE id = 1 RETURNING value`)).Scan(&rev); err != nil {
		return 0, fmt.Errorf("bump revision: %w", err)
	}
	if err := fn(tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", op, err)
	}

	slog.DebugContext(ctx, "Store mutation committed", "operation", op, "revision", rev, "dialect", r.dialect)
	return rev, nil
}

func (r *Repository) exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return true, nil
}

func (r *Repository) nextSeq(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, r.rebind(query), args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

func (r *Repository) mergePeople(ctx context.Context, tx *sql.Tx, names ...string) error {
	for _, name := range names {
		_, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO participants (name, seq)
			SELECT ?, COALESCE(MAX(seq), 0) + 1 FROM participants
			WHERE NOT EXISTS (SELECT 1 FROM participants WHERE name = ?)`), name, name)
		if err != nil {
			return fmt.Errorf("add participant %q: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) AddEqual(ctx context.Context, e core.EqualSplitEntry) (int64, error) {
	return r.mutate(ctx, "add equal entry", func(tx *sql.Tx) error {
		dup, err := r.exists(ctx, tx, "equal_entries", e.ID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicateID
		}
		seq, err := r.nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM equal_entries`)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO equal_entries (id, seq, label, amount, payer) VALUES (?, ?, ?, ?, ?)`),
			e.ID, seq, e.Label, e.Amount, e.Payer); err != nil {
			return fmt.Errorf("insert equal entry: %w", err)
		}
		for i, name := range e.SharedWith {
			if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO equal_sharers (entry_id, seq, name) VALUES (?, ?, ?)`),
				e.ID, i+1, name); err != nil {
				return fmt.Errorf("insert sharer: %w", err)
			}
		}
		return r.mergePeople(ctx, tx, e.People()...)
	})
}

func (r *Repository) AddItemized(ctx context.Context, e core.ItemizedSplitEntry) (int64, error) {
	return r.mutate(ctx, "add itemized entry", func(tx *sql.Tx) error {
		dup, err := r.exists(ctx, tx, "itemized_entries", e.ID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicateID
		}
		seq, err := r.nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM itemized_entries`)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO itemized_entries (id, seq, label, amount, payer) VALUES (?, ?, ?, ?, ?)`),
			e.ID, seq, e.Label, e.Amount, e.Payer); err != nil {
			return fmt.Errorf("insert itemized entry: %w", err)
		}
		for i, c := range e.Costs {
			if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO itemized_costs (entry_id, seq, person, label, cost) VALUES (?, ?, ?, ?, ?)`),
				e.ID, i+1, c.Person, c.Label, c.Cost); err != nil {
				return fmt.Errorf("insert itemized cost: %w", err)
			}
		}
		return r.mergePeople(ctx, tx, e.People()...)
	})
}

func (r *Repository) DeleteEqual(ctx context.Context, id string) (int64, error) {
	return r.mutate(ctx, "delete equal entry", func(tx *sql.Tx) error {
		return r.deleteEntry(ctx, tx, "equal_entries", "equal_sharers", id)
	})
}

func (r *Repository) DeleteItemized(ctx context.Context, id string) (int64, error) {
	return r.mutate(ctx, "delete itemized entry", func(tx *sql.Tx) error {
		return r.deleteEntry(ctx, tx, "itemized_entries", "itemized_costs", id)
	})
}

func (r *Repository) deleteEntry(ctx context.Context, tx *sql.Tx, table, childTable, id string) error {
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM `+childTable+` WHERE entry_id = ?`), id); err != nil {
		return fmt.Errorf("delete from %s: %w", childTable, err)
	}
	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM `+table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) loadEqualEntry(ctx context.Context, tx *sql.Tx, id string) (core.EqualSplitEntry, error) {
	e := core.EqualSplitEntry{ID: id}
	err := tx.QueryRowContext(ctx, r.rebind(`SELECT label, amount, payer FROM equal_entries WHERE id = ?`), id).
		Scan(&e.Label, &e.Amount, &e.Payer)
	if errors.Is(err, sql.ErrNoRows) {
		return e, store.ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get equal entry: %w", err)
	}

	rows, err := tx.QueryContext(ctx, r.rebind(`SELECT name FROM equal_sharers WHERE entry_id = ? ORDER BY seq`), id)
	if err != nil {
		return e, fmt.Errorf("list sharers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return e, fmt.Errorf("scan sharer: %w", err)
		}
		e.SharedWith = append(e.SharedWith, name)
	}
	return e, rows.Err()
}

func (r *Repository) AddSharer(ctx context.Context, entryID, name string) (int64, error) {
	return r.mutate(ctx, "add sharer", func(tx *sql.Tx) error {
		e, err := r.loadEqualEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if !store.CanShare(e, name) {
			return store.ErrAlreadySharing
		}
		seq, err := r.nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM equal_sharers WHERE entry_id = ?`, entryID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO equal_sharers (entry_id, seq, name) VALUES (?, ?, ?)`),
			entryID, seq, name); err != nil {
			return fmt.Errorf("insert sharer: %w", err)
		}
		return r.mergePeople(ctx, tx, name)
	})
}

func (r *Repository) RemoveSharer(ctx context.Context, entryID, name string) (int64, error) {
	return r.mutate(ctx, "remove sharer", func(tx *sql.Tx) error {
		ok, err := r.exists(ctx, tx, "equal_entries", entryID)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM equal_sharers WHERE entry_id = ? AND name = ?`), entryID, name); err != nil {
			return fmt.Errorf("delete sharer: %w", err)
		}
		return nil
	})
}
