package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect captures the placeholder and clock syntax of a SQL backend.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	Now         string
}

// Postgres uses $n placeholders.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Now:         "now()",
}

// SQLite uses ? placeholders.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Now:         "CURRENT_TIMESTAMP",
}

// Ident quotes a column or table name. Schema-qualified names are split.
func Ident(name string) string {
	parts := strings.SplitN(name, ".", 2)
	return pgx.Identifier(parts).Sanitize()
}

// IdentList quotes and joins column names.
func IdentList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = Ident(c)
	}
	return strings.Join(quoted, ", ")
}

func (d Dialect) placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

func returningClause(cols string) string {
	if cols == "" {
		return ""
	}
	return " RETURNING " + cols
}

// InsertSQL builds a single-row INSERT.
func (d Dialect) InsertSQL(table string, cols []string, returning string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
		Ident(table), IdentList(cols), d.placeholders(1, len(cols)), returningClause(returning))
}

// UpsertSQL builds a single-row INSERT ... ON CONFLICT (key) DO UPDATE that
// overwrites only the supplied columns. An "id" column is inserted but never
// overwritten.
func (d Dialect) UpsertSQL(table string, cols []string, conflictKey string, returning string) string {
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", Ident(c), Ident(c)))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", Ident("updated_at"), d.Now))

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s%s",
		Ident(table), IdentList(cols), d.placeholders(1, len(cols)), Ident(conflictKey),
		strings.Join(sets, ", "), returningClause(returning))
}

// UpdateSQL builds UPDATE table SET cols... WHERE whereCol = <last placeholder>.
func (d Dialect) UpdateSQL(table string, cols []string, whereCol string, returning string) string {
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", Ident(c), d.Placeholder(i+1)))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", Ident("updated_at"), d.Now))

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s%s",
		Ident(table), strings.Join(sets, ", "), Ident(whereCol), d.Placeholder(len(cols)+1),
		returningClause(returning))
}

// SelectSQL builds SELECT cols FROM table WHERE whereCol = <placeholder 1>.
func (d Dialect) SelectSQL(table string, cols []string, whereCol string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		IdentList(cols), Ident(table), Ident(whereCol), d.Placeholder(1))
}
