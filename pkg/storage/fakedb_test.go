package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// recordingDriver stands in for Postgres: it records every statement and
// answers queries from per-test hooks.
type recordingDriver struct{}

type statement struct {
	query string
	args  []driver.Value
}

type fakeDB struct {
	mu        sync.Mutex
	execs     []statement
	queries   []statement
	commits   int
	rollbacks int

	onExec  func(query string, args []driver.Value) (int64, error)
	onQuery func(query string, args []driver.Value) (*fakeRows, error)
}

type fakeConn struct{ db *fakeDB }

type fakeTx struct{ db *fakeDB }

type fakeRows struct {
	cols []string
	data [][]driver.Value
	pos  int
}

var (
	fakeDBs sync.Map
	fakeSeq atomic.Int64
)

var (
	_ driver.ExecerContext  = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
)

func init() {
	sql.Register("recording", &recordingDriver{})
}

func (recordingDriver) Open(name string) (driver.Conn, error) {
	db, ok := fakeDBs.Load(name)
	if !ok {
		return nil, fmt.Errorf("no fake database %q", name)
	}
	return &fakeConn{db: db.(*fakeDB)}, nil
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return &fakeTx{db: c.db}, nil }

func (c *fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values := plain(args)
	c.db.mu.Lock()
	c.db.execs = append(c.db.execs, statement{query, values})
	hook := c.db.onExec
	c.db.mu.Unlock()

	affected := int64(1)
	if hook != nil {
		n, err := hook(query, values)
		if err != nil {
			return nil, err
		}
		affected = n
	}
	return driver.RowsAffected(affected), nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values := plain(args)
	c.db.mu.Lock()
	c.db.queries = append(c.db.queries, statement{query, values})
	hook := c.db.onQuery
	c.db.mu.Unlock()

	if hook == nil {
		return &fakeRows{}, nil
	}
	rows, err := hook(query, values)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &fakeRows{}
	}
	return rows, nil
}

func (t *fakeTx) Commit() error {
	t.db.mu.Lock()
	t.db.commits++
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback() error {
	t.db.mu.Lock()
	t.db.rollbacks++
	t.db.mu.Unlock()
	return nil
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}

func rowsOf(cols []string, data ...[]driver.Value) *fakeRows {
	return &fakeRows{cols: cols, data: data}
}

func plain(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// newFakeStore opens a DB backed by a fresh recording database.
func newFakeStore(t *testing.T) (*DB, *fakeDB) {
	t.Helper()
	fake := &fakeDB{}
	name := fmt.Sprintf("%s-%d", t.Name(), fakeSeq.Add(1))
	fakeDBs.Store(name, fake)
	conn, err := sql.Open("recording", name)
	if err != nil {
		t.Fatalf("open fake database: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		conn.Close()
		fakeDBs.Delete(name)
	})
	return NewDB(conn), fake
}

func (f *fakeDB) execsContaining(fragment string) []statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []statement
	for _, s := range f.execs {
		if strings.Contains(s.query, fragment) {
			out = append(out, s)
		}
	}
	return out
}

// squash collapses whitespace so assertions do not depend on indentation.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
