// Package query assembles parameterized WHERE/ORDER BY/LIMIT clauses.
//
// Column names passed to the builder are code constants. Values supplied by
// clients only ever travel as bind arguments, and client-chosen sort keys are
// resolved through an allow-list.
package query

import (
	"fmt"
	"strings"
)

type Builder struct {
	where   []string
	args    []any
	orderBy string
	limit   int
	offset  int
}

func New() *Builder {
	return &Builder{}
}

// Where adds a trusted expression with ? placeholders.
func (b *Builder) Where(expr string, args ...any) *Builder {
	b.where = append(b.where, expr)
	b.args = append(b.args, args...)
	return b
}

func (b *Builder) Eq(column string, value any) *Builder {
	return b.Where(column+" = ?", value)
}

func (b *Builder) Gte(column string, value any) *Builder {
	return b.Where(column+" >= ?", value)
}

func (b *Builder) Lt(column string, value any) *Builder {
	return b.Where(column+" < ?", value)
}

func (b *Builder) Lte(column string, value any) *Builder {
	return b.Where(column+" <= ?", value)
}

// Search matches term case-insensitively as a substring of any of the columns.
// An empty term adds nothing.
func (b *Builder) Search(term string, columns ...string) *Builder {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return b
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		parts[i] = "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
		args[i] = pattern
	}
	return b.Where("("+strings.Join(parts, " OR ")+")", args...)
}

func (b *Builder) OrderBy(clause string) *Builder {
	b.orderBy = clause
	return b
}

// Page sets LIMIT/OFFSET; a non-positive limit disables both.
func (b *Builder) Page(limit, offset int) *Builder {
	b.limit = limit
	if offset < 0 {
		offset = 0
	}
	b.offset = offset
	return b
}

// Build appends the accumulated clauses to base and returns the query with ? placeholders.
func (b *Builder) Build(base string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	args := append([]any(nil), b.args...)

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
		if b.offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, b.offset)
		}
	}
	return sb.String(), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Sort resolves client sort keys against an allow-list of column expressions.
type Sort struct {
	columns    map[string]string
	defaultKey string
}

func NewSort(defaultKey string, columns map[string]string) Sort {
	return Sort{columns: columns, defaultKey: defaultKey}
}

// Resolve returns "<column> ASC|DESC". Empty key and order fall back to the default key ascending.
func (s Sort) Resolve(key, order string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = s.defaultKey
	}
	column, ok := s.columns[key]
	if !ok {
		return "", fmt.Errorf("unsupported sort field %q", key)
	}

	dir := "ASC"
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "asc":
	case "desc":
		dir = "DESC"
	default:
		return "", fmt.Errorf("unsupported sort order %q", order)
	}
	return column + " " + dir, nil
}
