package sqlexec

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TableInfo describes one table known to the catalog.
type TableInfo struct {
	Schema  string
	Name    string
	Columns []string
}

// Catalog maps case-folded identifiers to their canonical spelling. It is
// built once and read-only afterwards.
type Catalog struct {
	defaultSchema string
	names         map[string]string // lower -> canonical, schemas, tables and columns
	tables        map[string]string // lower table -> canonical schema
}

// NewCatalog builds a catalog from table metadata. Table names that exist in
// more than one schema resolve to the first schema seen.
func NewCatalog(defaultSchema string, tables []TableInfo) *Catalog {
	c := &Catalog{
		defaultSchema: defaultSchema,
		names:         make(map[string]string),
		tables:        make(map[string]string),
	}
	if defaultSchema != "" {
		c.names[strings.ToLower(defaultSchema)] = defaultSchema
	}
	for _, t := range tables {
		if t.Schema != "" {
			c.add(t.Schema)
		}
		c.add(t.Name)
		if _, ok := c.tables[strings.ToLower(t.Name)]; !ok {
			c.tables[strings.ToLower(t.Name)] = t.Schema
		}
		for _, col := range t.Columns {
			c.add(col)
		}
	}
	return c
}

func (c *Catalog) add(name string) {
	key := strings.ToLower(name)
	if _, ok := c.names[key]; !ok {
		c.names[key] = name
	}
}

// DefaultSchema returns the schema used to qualify bare table names.
func (c *Catalog) DefaultSchema() string {
	if c == nil {
		return ""
	}
	return c.defaultSchema
}

// Canonical returns the catalog spelling of ident, if known.
func (c *Catalog) Canonical(ident string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.names[strings.ToLower(ident)]
	return name, ok
}

// SchemaFor returns the schema that owns table, falling back to the default.
func (c *Catalog) SchemaFor(table string) string {
	if c == nil {
		return ""
	}
	if s, ok := c.tables[strings.ToLower(table)]; ok && s != "" {
		return s
	}
	return c.defaultSchema
}

// HasTables reports whether any table metadata was loaded.
func (c *Catalog) HasTables() bool {
	return c != nil && len(c.tables) > 0
}

// IsTable reports whether name is a known table.
func (c *Catalog) IsTable(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.tables[strings.ToLower(name)]
	return ok
}

// Len reports the number of distinct identifiers.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// LoadCatalog reads table and column names for schemas from information_schema.
func LoadCatalog(ctx context.Context, pool *pgxpool.Pool, defaultSchema string, schemas []string) (*Catalog, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `
		SELECT c.table_schema, c.table_name, c.column_name
		FROM information_schema.columns c
		WHERE c.table_schema = ANY($1)
		ORDER BY c.table_schema, c.table_name, c.ordinal_position`

	rows, err := conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []TableInfo
	index := make(map[string]int)
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, err
		}
		key := schema + "." + table
		i, ok := index[key]
		if !ok {
			i = len(tables)
			index[key] = i
			tables = append(tables, TableInfo{Schema: schema, Name: table})
		}
		tables[i].Columns = append(tables[i].Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return NewCatalog(defaultSchema, tables), nil
}
