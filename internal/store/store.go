// Package store provides database access for posts and their dependent
// tables. Each store wraps a Querier, which is either the connection pool or
// a transaction handed out by the Coordinator, so the same store code runs
// inside and outside transactions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique constraint rejected the write.
	ErrConflict = errors.New("conflict: row already exists")
)

// Querier executes SQL. It is implemented by *sql.DB, *sql.Tx and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// chunkSize caps the number of ids bound into one statement. SQLite builds
// before 3.32 allow 999 variables per statement.
const chunkSize = 500

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// rebind rewrites "?" placeholders as "$1", "$2", ... skipping quoted
// literals. Both PostgreSQL and SQLite accept the numbered form.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunks splits ids into slices of at most chunkSize.
func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > chunkSize {
		out = append(out, ids[:chunkSize])
		ids = ids[chunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("invalid sql identifier %q", n)
		}
	}
	return nil
}

// BulkDelete deletes rows of table whose column matches one of ids and
// returns the number of rows removed.
func BulkDelete(ctx context.Context, q Querier, table, column string, ids []string) (int64, error) {
	if err := checkIdent(table, column); err != nil {
		return 0, err
	}
	var total int64
	for _, chunk := range chunks(ids) {
		query := rebind(fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", table, column, placeholders(len(chunk))))
		res, err := q.ExecContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return total, fmt.Errorf("bulk delete %s.%s: %w", table, column, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// BulkSetNull sets column to NULL on every row whose column matches one of
// ids, detaching the rows without deleting them.
func BulkSetNull(ctx context.Context, q Querier, table, column string, ids []string) (int64, error) {
	if err := checkIdent(table, column); err != nil {
		return 0, err
	}
	var total int64
	for _, chunk := range chunks(ids) {
		query := rebind(fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IN (%s)", table, column, column, placeholders(len(chunk))))
		res, err := q.ExecContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return total, fmt.Errorf("bulk set null %s.%s: %w", table, column, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// BulkInsert inserts rows into table. With ignoreConflicts, rows that would
// violate a unique constraint are skipped instead of failing the statement.
// It returns the number of rows actually inserted.
func BulkInsert(ctx context.Context, q Querier, table string, columns []string, rows [][]any, ignoreConflicts bool) (int64, error) {
	if err := checkIdent(append([]string{table}, columns...)...); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	perChunk := chunkSize / len(columns)
	if perChunk == 0 {
		perChunk = 1
	}
	tuple := "(" + placeholders(len(columns)) + ")"

	var total int64
	for start := 0; start < len(rows); start += perChunk {
		end := min(start+perChunk, len(rows))
		batch := rows[start:end]

		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(columns))
		for i, row := range batch {
			if len(row) != len(columns) {
				return total, fmt.Errorf("bulk insert %s: row has %d values, want %d", table, len(row), len(columns))
			}
			values[i] = tuple
			args = append(args, row...)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), strings.Join(values, ", "))
		if ignoreConflicts {
			query += " ON CONFLICT DO NOTHING"
		}
		res, err := q.ExecContext(ctx, rebind(query), args...)
		if err != nil {
			if isUniqueViolation(err) {
				return total, fmt.Errorf("bulk insert %s: %w", table, ErrConflict)
			}
			return total, fmt.Errorf("bulk insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// isUniqueViolation reports whether err is a unique constraint violation
// from PostgreSQL or SQLite.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
