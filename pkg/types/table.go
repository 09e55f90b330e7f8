package types

import "fmt"

// ColumnType is one of the wire types KNIME container table nodes accept.
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnInt     ColumnType = "int"
	ColumnLong    ColumnType = "long"
	ColumnDouble  ColumnType = "double"
	ColumnBoolean ColumnType = "boolean"
)

// ParseColumnType converts a declared wire type name into a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(s) {
	case ColumnString, ColumnInt, ColumnLong, ColumnDouble, ColumnBoolean:
		return ColumnType(s), nil
	}
	return "", NewError(CodeUnsupportedColumnType, fmt.Sprintf("unknown column type: %q", s), nil)
}

// Column is a single entry of a table spec: a name paired with its declared
// wire type.
type Column struct {
	Name string
	Type ColumnType
}

// TableSpec is the ordered column specification of a data table. Order is
// significant: position i of every row carries a value of Columns[i].Type.
type TableSpec []Column

// Validate checks that column names are unique within the spec.
func (s TableSpec) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, c := range s {
		if _, dup := seen[c.Name]; dup {
			return NewError(CodeSchemaMismatch, fmt.Sprintf("duplicate column name: %q", c.Name), nil)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Names returns the column names in spec order.
func (s TableSpec) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Row is one row of table data. A nil cell is the missing-value sentinel and
// is permitted for any column type.
type Row []any

// DataTable pairs a spec with row-major data. It is the canonical unit
// exchanged with the engine, both on disk (local batch executor) and over
// HTTP (server jobs).
type DataTable struct {
	Spec TableSpec
	Rows []Row
}

// Validate checks the spec and that every row has exactly one cell per
// declared column.
func (t *DataTable) Validate() error {
	if err := t.Spec.Validate(); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Spec) {
			return NewError(CodeSchemaMismatch,
				fmt.Sprintf("row %d has %d cells, spec declares %d columns", i, len(row), len(t.Spec)), nil)
		}
	}
	return nil
}

// NumRows returns the number of data rows.
func (t *DataTable) NumRows() int { return len(t.Rows) }

// NumCols returns the number of declared columns.
func (t *DataTable) NumCols() int { return len(t.Spec) }
