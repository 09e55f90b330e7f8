package table

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"yqhp/knime-bridge/pkg/types"
)

// Form selects the native representation Decode produces.
type Form int

const (
	// FormDataFrame decodes into a gota dataframe.DataFrame.
	FormDataFrame Form = iota
	// FormColumnMap decodes into a plain ordered ColumnMap.
	FormColumnMap
)

// Encode converts a native table (a *ColumnMap or a dataframe.DataFrame)
// into a wire data table. Column types are inferred from the values; a
// column whose values fit no single wire type fails with an
// UNSUPPORTED_COLUMN_TYPE error. Row order is preserved.
func Encode(native any) (types.DataTable, error) {
	switch t := native.(type) {
	case *ColumnMap:
		return encodeColumnMap(t)
	case ColumnMap:
		return encodeColumnMap(&t)
	case dataframe.DataFrame:
		return encodeDataFrame(t)
	case *dataframe.DataFrame:
		return encodeDataFrame(*t)
	case types.DataTable:
		// Already in wire shape; validate and pass through.
		return t, t.Validate()
	}
	return types.DataTable{}, types.NewError(types.CodeUnsupportedColumnType,
		fmt.Sprintf("unsupported native table type %T", native), nil)
}

// Decode converts a wire data table into the requested native form. Every
// row is validated against the spec before anything is returned.
func Decode(dt types.DataTable, form Form) (any, error) {
	switch form {
	case FormColumnMap:
		return DecodeColumnMap(dt)
	case FormDataFrame:
		return DecodeDataFrame(dt)
	}
	return nil, types.NewError(types.CodeSchemaMismatch, fmt.Sprintf("unknown decode form %d", form), nil)
}

// DecodeColumnMap converts a wire table into the plain ordered mapping form.
func DecodeColumnMap(dt types.DataTable) (*ColumnMap, error) {
	cols, err := decodeColumns(dt)
	if err != nil {
		return nil, err
	}
	m := NewColumnMap()
	for i, c := range dt.Spec {
		if err := m.Add(c.Name, cols[i]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DecodeDataFrame converts a wire table into a gota DataFrame. Missing
// values become NA elements.
func DecodeDataFrame(dt types.DataTable) (dataframe.DataFrame, error) {
	cols, err := decodeColumns(dt)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	ss := make([]series.Series, len(dt.Spec))
	for i, c := range dt.Spec {
		ss[i] = series.New(seriesValues(c.Type, cols[i]), seriesType(c.Type), c.Name)
	}
	df := dataframe.New(ss...)
	if df.Err != nil {
		return dataframe.DataFrame{}, types.NewError(types.CodeSchemaMismatch, "building dataframe", df.Err)
	}
	return df, nil
}

// decodeColumns validates the table and transposes it into per-column value
// slices, coercing each cell to the declared type.
func decodeColumns(dt types.DataTable) ([][]any, error) {
	if err := dt.Spec.Validate(); err != nil {
		return nil, err
	}
	cols := make([][]any, len(dt.Spec))
	for i := range cols {
		cols[i] = make([]any, 0, len(dt.Rows))
	}
	for ri, row := range dt.Rows {
		if len(row) != len(dt.Spec) {
			return nil, types.NewError(types.CodeSchemaMismatch,
				fmt.Sprintf("row %d has %d cells, spec declares %d columns", ri, len(row), len(dt.Spec)), nil)
		}
		for ci, cell := range row {
			v, err := coerceCell(cell, dt.Spec[ci].Type)
			if err != nil {
				return nil, types.NewError(types.CodeSchemaMismatch,
					fmt.Sprintf("row %d column %q: %v", ri, dt.Spec[ci].Name, err), nil)
			}
			cols[ci] = append(cols[ci], v)
		}
	}
	return cols, nil
}

func encodeColumnMap(m *ColumnMap) (types.DataTable, error) {
	if err := m.validate(); err != nil {
		return types.DataTable{}, err
	}
	spec := make(types.TableSpec, 0, m.NumCols())
	cols := make([][]any, 0, m.NumCols())
	for _, name := range m.names {
		values := m.cols[name]
		ct, err := inferColumnType(name, values)
		if err != nil {
			return types.DataTable{}, err
		}
		normalized := make([]any, len(values))
		for i, v := range values {
			nv, err := coerceCell(v, ct)
			if err != nil {
				return types.DataTable{}, types.NewError(types.CodeUnsupportedColumnType,
					fmt.Sprintf("column %q: %v", name, err), nil)
			}
			normalized[i] = nv
		}
		spec = append(spec, types.Column{Name: name, Type: ct})
		cols = append(cols, normalized)
	}
	return types.DataTable{Spec: spec, Rows: transpose(cols, m.NumRows())}, nil
}

func encodeDataFrame(df dataframe.DataFrame) (types.DataTable, error) {
	if df.Err != nil {
		return types.DataTable{}, types.NewError(types.CodeSchemaMismatch, "dataframe carries an error", df.Err)
	}
	names := df.Names()
	spec := make(types.TableSpec, 0, len(names))
	cols := make([][]any, 0, len(names))
	for _, name := range names {
		s := df.Col(name)
		values := make([]any, s.Len())
		for i := 0; i < s.Len(); i++ {
			if s.Elem(i).IsNA() {
				values[i] = nil
				continue
			}
			values[i] = s.Val(i)
		}
		ct, err := inferColumnType(name, values)
		if err != nil {
			return types.DataTable{}, err
		}
		for i, v := range values {
			nv, err := coerceCell(v, ct)
			if err != nil {
				return types.DataTable{}, types.NewError(types.CodeUnsupportedColumnType,
					fmt.Sprintf("column %q: %v", name, err), nil)
			}
			values[i] = nv
		}
		spec = append(spec, types.Column{Name: name, Type: ct})
		cols = append(cols, values)
	}
	return types.DataTable{Spec: spec, Rows: transpose(cols, df.Nrow())}, nil
}

func transpose(cols [][]any, rows int) []types.Row {
	out := make([]types.Row, rows)
	for ri := 0; ri < rows; ri++ {
		row := make(types.Row, len(cols))
		for ci := range cols {
			row[ci] = cols[ci][ri]
		}
		out[ri] = row
	}
	return out
}

// inferColumnType maps a column's observed value types onto one wire type.
// Integer columns whose values exceed the int32 range promote to long, and
// mixed integer/floating columns promote to double. An all-missing column
// defaults to string.
func inferColumnType(name string, values []any) (types.ColumnType, error) {
	var found types.ColumnType
	for _, v := range values {
		if v == nil {
			continue
		}
		ct, err := cellType(v)
		if err != nil {
			return "", types.NewError(types.CodeUnsupportedColumnType,
				fmt.Sprintf("column %q: %v", name, err), nil)
		}
		merged, ok := mergeTypes(found, ct)
		if !ok {
			return "", types.NewError(types.CodeUnsupportedColumnType,
				fmt.Sprintf("column %q mixes %s and %s values", name, found, ct), nil)
		}
		found = merged
	}
	if found == "" {
		found = types.ColumnString
	}
	return found, nil
}

func cellType(v any) (types.ColumnType, error) {
	switch n := v.(type) {
	case string:
		return types.ColumnString, nil
	case bool:
		return types.ColumnBoolean, nil
	case int:
		return intishType(int64(n)), nil
	case int8:
		return types.ColumnInt, nil
	case int16:
		return types.ColumnInt, nil
	case int32:
		return types.ColumnInt, nil
	case int64:
		return intishType(n), nil
	case uint, uint8, uint16, uint32, uint64:
		return types.ColumnLong, nil
	case float32, float64:
		return types.ColumnDouble, nil
	}
	return "", fmt.Errorf("value type %T maps to no wire type", v)
}

func intishType(n int64) types.ColumnType {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return types.ColumnInt
	}
	return types.ColumnLong
}

func mergeTypes(a, b types.ColumnType) (types.ColumnType, bool) {
	if a == "" || a == b {
		return b, true
	}
	numeric := func(t types.ColumnType) bool {
		return t == types.ColumnInt || t == types.ColumnLong || t == types.ColumnDouble
	}
	if !numeric(a) || !numeric(b) {
		return "", false
	}
	if a == types.ColumnDouble || b == types.ColumnDouble {
		return types.ColumnDouble, true
	}
	return types.ColumnLong, true
}

// coerceCell normalizes a cell value to the canonical representation of the
// declared type: string, int64, float64, bool, or nil.
func coerceCell(v any, t types.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case types.ColumnString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case types.ColumnBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case types.ColumnInt:
		if n, ok := cellInt(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return n, nil
		}
	case types.ColumnLong:
		if n, ok := cellInt(v); ok {
			return n, nil
		}
	case types.ColumnDouble:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int32:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not fit declared type %s", v, v, t)
}

// cellInt extracts an integral value, accepting floats with no fractional
// part since JSON parsers do not distinguish.
func cellInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return 0, false
}

func seriesType(t types.ColumnType) series.Type {
	switch t {
	case types.ColumnInt, types.ColumnLong:
		return series.Int
	case types.ColumnDouble:
		return series.Float
	case types.ColumnBoolean:
		return series.Bool
	}
	return series.String
}

// seriesValues prepares canonical cells for gota, whose element setters do
// not understand int64.
func seriesValues(t types.ColumnType, values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if n, ok := v.(int64); ok {
			out[i] = int(n)
			continue
		}
		out[i] = v
	}
	return out
}
