package sqltools

import (
	"fmt"
	"strings"
	"sync"
)

type Column struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// Schema describes a table for prompt text and query validation. It is never
// checked against the real DDL.
type Schema struct {
	Table       string   `yaml:"table" json:"table"`
	Columns     []Column `yaml:"columns" json:"columns"`
	Description string   `yaml:"description" json:"description"`
}

func (s Schema) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Registry holds table schemas in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	schemas map[string]Schema
}

func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// Register inserts or replaces the schema for s.Table. A replaced table keeps
// its original position.
func (r *Registry) Register(s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[s.Table]; !ok {
		r.order = append(r.order, s.Table)
	}
	cols := make([]Column, len(s.Columns))
	copy(cols, s.Columns)
	s.Columns = cols
	r.schemas[s.Table] = s
}

func (r *Registry) Schema(table string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[table]
	return s, ok
}

func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Describe renders every schema for inclusion in a system prompt.
func (r *Registry) Describe() string {
	parts := make([]string, 0, r.Len())
	for _, s := range r.Schemas() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Table %s: %s", s.Table, s.Description)
		for _, c := range s.Columns {
			fmt.Fprintf(&sb, "\n  - %s (%s)", c.Name, c.Type)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}

// ToolDescription is the description advertised for the query tool.
func (r *Registry) ToolDescription() string {
	parts := make([]string, 0, r.Len())
	for _, s := range r.Schemas() {
		cols := make([]string, 0, len(s.Columns))
		for _, c := range s.Columns {
			cols = append(cols, fmt.Sprintf("%s (%s)", c.Name, c.Type))
		}
		parts = append(parts, fmt.Sprintf("Table %s: %s\nColumns: %s", s.Table, s.Description, strings.Join(cols, ", ")))
	}
	return "Execute SQL queries against the database. Available schemas:\n" + strings.Join(parts, "\n")
}

// ValidateQuery rejects queries that reference table.column pairs where the
// table is registered and the column is not. It is a lexical check over
// whitespace-separated tokens: aliases, quoted identifiers and anything that
// is not written as table.column pass through.
func (r *Registry) ValidateQuery(query string) bool {
	q := strings.ToLower(query)
	for _, s := range r.Schemas() {
		table := strings.ToLower(s.Table)
		if table == "" || !strings.Contains(q, table) {
			continue
		}
		for _, word := range strings.Fields(q) {
			if !strings.Contains(word, ".") {
				continue
			}
			parts := strings.Split(word, ".")
			ref := strings.TrimLeft(parts[0], ",;()")
			column := strings.Trim(parts[1], ",;()")
			if ref != table || column == "" || column == "*" {
				continue
			}
			if !s.hasColumn(column) {
				return false
			}
		}
	}
	return true
}
