package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "SELECT * FROM medicines m"

func TestBuildCombinations(t *testing.T) {
	tests := []struct {
		name      string
		build     func(b *Builder)
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no filters",
			build:     func(b *Builder) {},
			wantQuery: base,
		},
		{
			name:      "equality",
			build:     func(b *Builder) { b.Eq("m.category", "Antibiotic") },
			wantQuery: base + " WHERE m.category = ?",
			wantArgs:  []any{"Antibiotic"},
		},
		{
			name:      "search over two columns",
			build:     func(b *Builder) { b.Search("Para", "m.name", "m.generic_name") },
			wantQuery: base + ` WHERE (LOWER(m.name) LIKE ? ESCAPE '\' OR LOWER(m.generic_name) LIKE ? ESCAPE '\')`,
			wantArgs:  []any{"%para%", "%para%"},
		},
		{
			name:      "blank search ignored",
			build:     func(b *Builder) { b.Search("   ", "m.name") },
			wantQuery: base,
		},
		{
			name:      "fixed expression",
			build:     func(b *Builder) { b.Where("m.stock_quantity <= m.reorder_level") },
			wantQuery: base + " WHERE m.stock_quantity <= m.reorder_level",
		},
		{
			name: "range with order and page",
			build: func(b *Builder) {
				b.Gte("s.created_at", "a").Lt("s.created_at", "b").OrderBy("s.created_at DESC").Page(10, 20)
			},
			wantQuery: base + " WHERE s.created_at >= ? AND s.created_at < ? ORDER BY s.created_at DESC LIMIT ? OFFSET ?",
			wantArgs:  []any{"a", "b", 10, 20},
		},
		{
			name:      "limit without offset",
			build:     func(b *Builder) { b.Lte("m.expiry_date", "x").Page(5, 0) },
			wantQuery: base + " WHERE m.expiry_date <= ? LIMIT ?",
			wantArgs:  []any{"x", 5},
		},
		{
			name:      "negative offset clamps",
			build:     func(b *Builder) { b.Page(5, -3) },
			wantQuery: base + " LIMIT ?",
			wantArgs:  []any{5},
		},
		{
			name: "every filter",
			build: func(b *Builder) {
				b.Eq("m.category", "Analgesic").
					Search("ol", "m.name").
					Where("m.stock_quantity <= m.reorder_level").
					OrderBy("m.name ASC")
			},
			wantQuery: base + ` WHERE m.category = ? AND (LOWER(m.name) LIKE ? ESCAPE '\') AND m.stock_quantity <= m.reorder_level ORDER BY m.name ASC`,
			wantArgs:  []any{"Analgesic", "%ol%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			tt.build(b)
			q, args := b.Build(base)
			assert.Equal(t, tt.wantQuery, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	_, args := New().Search(`50%_off\`, "m.name").Build(base)
	require.Len(t, args, 1)
	assert.Equal(t, `%50\%\_off\\%`, args[0])
}

func TestBuildDoesNotAliasArgs(t *testing.T) {
	b := New().Eq("a", 1).Page(10, 0)
	_, first := b.Build(base)
	_, second := b.Build(base)
	assert.Equal(t, first, second)
}

func TestSortResolve(t *testing.T) {
	s := NewSort("name", map[string]string{"name": "m.name", "stock": "m.stock_quantity"})

	tests := []struct {
		key, order string
		want       string
		wantErr    bool
	}{
		{"", "", "m.name ASC", false},
		{"stock", "desc", "m.stock_quantity DESC", false},
		{" NAME ", "ASC", "m.name ASC", false},
		{"price; DROP TABLE medicines", "", "", true},
		{"name", "sideways", "", true},
	}
	for _, tt := range tests {
		got, err := s.Resolve(tt.key, tt.order)
		if tt.wantErr {
			assert.Error(t, err, tt.key)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
