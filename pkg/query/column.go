package query

import "strings"

// Column is a typed reference to a projection column, keeping SQL
// composition joinable across tables.
type Column struct {
	Name  string
	Table string
	Alias string
}

// Col is shorthand for a table-qualified column.
func Col(table, name string) Column {
	return Column{Name: name, Table: table}
}

// As returns a copy carrying an alias.
func (c Column) As(alias string) Column {
	c.Alias = alias
	return c
}

// Identifier renders "table.name", or bare "name" without a table.
func (c Column) Identifier() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Select renders the select-list expression, aliasing when the alias
// differs from the column name.
func (c Column) Select() string {
	if c.Alias == "" || c.Alias == c.Name {
		return c.Identifier()
	}
	return c.Identifier() + ` AS "` + c.Alias + `"`
}

// OrderBy renders the sort expression, preferring the alias when present.
func (c Column) OrderBy() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Identifier()
}

func selectList(columns ...Column) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c.Select()
	}
	return strings.Join(parts, ", ")
}
