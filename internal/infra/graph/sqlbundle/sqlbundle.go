// Package sqlbundle holds the DDL and the row codec shared by the SQL graph
// engines. Both engines keep the working graph in memory and rewrite these
// tables from a snapshot after every commit.
package sqlbundle

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cargohold/internal/infra/graph/memory"
	"cargohold/pkg/graph"
)

//go:embed sqlite.sql
var sqliteDDL string

//go:embed postgres.sql
var postgresDDL string

// SQLite returns the SQLite DDL.
func SQLite() string { return sqliteDDL }

// Postgres returns the Postgres DDL.
func Postgres() string { return postgresDDL }

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}

// Dialect captures what differs between the SQL engines.
type Dialect struct {
	Name string
	DDL  string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLiteDialect uses ? placeholders.
var SQLiteDialect = Dialect{Name: "sqlite", DDL: sqliteDDL, Placeholder: func(int) string { return "?" }}

// PostgresDialect uses $n placeholders.
var PostgresDialect = Dialect{Name: "postgres", DDL: postgresDDL, Placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}

func (d Dialect) params(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ",")
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const sequenceKey = "sequence"

// ApplyDDL executes every statement of the dialect DDL.
func ApplyDDL(ctx context.Context, db Execer, d Dialect) error {
	for _, stmt := range SplitStatements(d.DDL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %s ddl: %w", d.Name, err)
		}
	}
	return nil
}

// Load reads the stored graph. Empty tables yield an empty snapshot.
func Load(ctx context.Context, db Queryer, d Dialect) (memory.Snapshot, error) {
	var snap memory.Snapshot
	rows, err := db.QueryContext(ctx, `SELECT id, label, properties FROM graph_vertices`)
	if err != nil {
		return snap, fmt.Errorf("select vertices: %w", err)
	}
	for rows.Next() {
		var (
			rec   memory.VertexRecord
			id    string
			props []byte
		)
		if err := rows.Scan(&id, &rec.Label, &props); err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("scan vertex: %w", err)
		}
		rec.ID = graph.ID(id)
		if err := json.Unmarshal(props, &rec.Properties); err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("decode vertex %s properties: %w", id, err)
		}
		snap.Vertices = append(snap.Vertices, rec)
	}
	if err := closeRows(rows, "vertices"); err != nil {
		return snap, err
	}

	rows, err = db.QueryContext(ctx, `SELECT id, label, out_id, in_id FROM graph_edges`)
	if err != nil {
		return snap, fmt.Errorf("select edges: %w", err)
	}
	for rows.Next() {
		var id, label, out, in string
		if err := rows.Scan(&id, &label, &out, &in); err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("scan edge: %w", err)
		}
		snap.Edges = append(snap.Edges, graph.Edge{ID: graph.ID(id), Label: label, Out: graph.ID(out), In: graph.ID(in)})
	}
	if err := closeRows(rows, "edges"); err != nil {
		return snap, err
	}

	rows, err = db.QueryContext(ctx, `SELECT value FROM graph_meta WHERE key = `+d.Placeholder(1), sequenceKey)
	if err != nil {
		return snap, fmt.Errorf("select meta: %w", err)
	}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("scan meta: %w", err)
		}
		seq, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			_ = rows.Close()
			return snap, fmt.Errorf("decode sequence %q: %w", value, err)
		}
		snap.Sequence = seq
	}
	return snap, closeRows(rows, "meta")
}

func closeRows(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate %s: %w", what, err)
	}
	return rows.Close()
}

// Persist replaces the stored graph with snap. Callers run it inside a
// database transaction.
func Persist(ctx context.Context, tx Execer, d Dialect, snap memory.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges`); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_vertices`); err != nil {
		return fmt.Errorf("clear vertices: %w", err)
	}
	insertVertex := `INSERT INTO graph_vertices (id, label, uuid, properties) VALUES (` + d.params(4) + `)`
	for _, v := range snap.Vertices {
		props, err := json.Marshal(v.Properties)
		if err != nil {
			return fmt.Errorf("encode vertex %s properties: %w", v.ID, err)
		}
		var uuid any
		if p, ok := v.Properties[graph.UUIDKey]; ok {
			uuid = p.Value()
		}
		if _, err := tx.ExecContext(ctx, insertVertex, string(v.ID), v.Label, uuid, string(props)); err != nil {
			return fmt.Errorf("insert vertex %s: %w", v.ID, err)
		}
	}
	insertEdge := `INSERT INTO graph_edges (id, label, out_id, in_id) VALUES (` + d.params(4) + `)`
	for _, e := range snap.Edges {
		if _, err := tx.ExecContext(ctx, insertEdge, string(e.ID), e.Label, string(e.Out), string(e.In)); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}
	upsertMeta := `INSERT INTO graph_meta (key, value) VALUES (` + d.params(2) + `) ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsertMeta, sequenceKey, strconv.FormatUint(snap.Sequence, 10)); err != nil {
		return fmt.Errorf("upsert sequence: %w", err)
	}
	return nil
}
