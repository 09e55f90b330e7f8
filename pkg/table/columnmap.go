package table

import (
	"fmt"
	"reflect"

	"yqhp/knime-bridge/pkg/types"
)

// ColumnMap is the plain native table form: an ordered mapping of column
// name to cell values. Column order follows insertion order, matching the
// positional semantics of the wire spec.
type ColumnMap struct {
	names []string
	cols  map[string][]any
}

// NewColumnMap creates an empty ColumnMap.
func NewColumnMap() *ColumnMap {
	return &ColumnMap{cols: make(map[string][]any)}
}

// Add appends a column. Column names must be unique.
func (m *ColumnMap) Add(name string, values []any) error {
	if _, dup := m.cols[name]; dup {
		return types.NewError(types.CodeSchemaMismatch, fmt.Sprintf("duplicate column name: %q", name), nil)
	}
	m.names = append(m.names, name)
	m.cols[name] = values
	return nil
}

// MustAdd is Add for tables built from literals; it panics on duplicates.
func (m *ColumnMap) MustAdd(name string, values []any) *ColumnMap {
	if err := m.Add(name, values); err != nil {
		panic(err)
	}
	return m
}

// Names returns the column names in insertion order.
func (m *ColumnMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Column returns the values of the named column, or nil if absent.
func (m *ColumnMap) Column(name string) []any {
	return m.cols[name]
}

// NumCols returns the number of columns.
func (m *ColumnMap) NumCols() int { return len(m.names) }

// NumRows returns the length of the first column, or 0 for an empty map.
func (m *ColumnMap) NumRows() int {
	if len(m.names) == 0 {
		return 0
	}
	return len(m.cols[m.names[0]])
}

// Equal reports deep equality including column order.
func (m *ColumnMap) Equal(other *ColumnMap) bool {
	if other == nil || !reflect.DeepEqual(m.names, other.names) {
		return false
	}
	for _, name := range m.names {
		if !reflect.DeepEqual(m.cols[name], other.cols[name]) {
			return false
		}
	}
	return true
}

// validate checks that all columns have the same length.
func (m *ColumnMap) validate() error {
	rows := m.NumRows()
	for _, name := range m.names {
		if len(m.cols[name]) != rows {
			return types.NewError(types.CodeSchemaMismatch,
				fmt.Sprintf("column %q has %d values, expected %d", name, len(m.cols[name]), rows), nil)
		}
	}
	return nil
}
