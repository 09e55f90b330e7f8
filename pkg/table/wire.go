package table

import (
	"fmt"

	"github.com/ohler55/ojg/oj"

	"yqhp/knime-bridge/pkg/types"
)

// Wire envelope field names, fixed by the engine's container table nodes.
const (
	wireSpecKey = "table-spec"
	wireDataKey = "table-data"
)

// WireValue builds the generic JSON value of the wire envelope: a
// "table-spec" list of single-key {name: type} mappings and a "table-data"
// list of rows. Missing cells marshal as JSON null.
func WireValue(dt types.DataTable) any {
	spec := make([]any, len(dt.Spec))
	for i, c := range dt.Spec {
		spec[i] = map[string]any{c.Name: string(c.Type)}
	}
	rows := make([]any, len(dt.Rows))
	for i, r := range dt.Rows {
		cells := make([]any, len(r))
		copy(cells, r)
		rows[i] = cells
	}
	return map[string]any{wireSpecKey: spec, wireDataKey: rows}
}

// MarshalWire serializes a data table into the wire format.
func MarshalWire(dt types.DataTable) ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	buf, err := oj.Marshal(WireValue(dt))
	if err != nil {
		return nil, types.NewError(types.CodeSchemaMismatch, "marshaling wire table", err)
	}
	return buf, nil
}

// UnmarshalWire parses a wire-format document and validates it against its
// own spec. Malformed envelopes and rows fail with SCHEMA_MISMATCH; unknown
// declared types fail with UNSUPPORTED_COLUMN_TYPE. Nothing is returned
// partially.
func UnmarshalWire(data []byte) (types.DataTable, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return types.DataTable{}, types.NewError(types.CodeSchemaMismatch, "parsing wire table", err)
	}
	return FromWireValue(v)
}

// FromWireValue converts a parsed generic JSON value into a data table.
func FromWireValue(v any) (types.DataTable, error) {
	root, ok := v.(map[string]any)
	if !ok {
		return types.DataTable{}, wireErr("wire table must be a JSON object, got %T", v)
	}
	rawSpec, ok := root[wireSpecKey].([]any)
	if !ok {
		return types.DataTable{}, wireErr("missing or malformed %q", wireSpecKey)
	}
	spec := make(types.TableSpec, 0, len(rawSpec))
	for i, entry := range rawSpec {
		m, ok := entry.(map[string]any)
		if !ok || len(m) != 1 {
			return types.DataTable{}, wireErr("spec entry %d must be a single-key mapping", i)
		}
		for name, rawType := range m {
			ts, ok := rawType.(string)
			if !ok {
				return types.DataTable{}, wireErr("spec entry %d: type of %q must be a string", i, name)
			}
			ct, err := types.ParseColumnType(ts)
			if err != nil {
				return types.DataTable{}, err
			}
			spec = append(spec, types.Column{Name: name, Type: ct})
		}
	}
	if err := spec.Validate(); err != nil {
		return types.DataTable{}, err
	}

	rawData, ok := root[wireDataKey].([]any)
	if !ok {
		return types.DataTable{}, wireErr("missing or malformed %q", wireDataKey)
	}
	rows := make([]types.Row, 0, len(rawData))
	for ri, rawRow := range rawData {
		cells, ok := rawRow.([]any)
		if !ok {
			return types.DataTable{}, wireErr("row %d must be a list", ri)
		}
		if len(cells) != len(spec) {
			return types.DataTable{}, wireErr("row %d has %d cells, spec declares %d columns", ri, len(cells), len(spec))
		}
		row := make(types.Row, len(cells))
		for ci, cell := range cells {
			cv, err := coerceCell(cell, spec[ci].Type)
			if err != nil {
				return types.DataTable{}, wireErr("row %d column %q: %v", ri, spec[ci].Name, err)
			}
			row[ci] = cv
		}
		rows = append(rows, row)
	}
	return types.DataTable{Spec: spec, Rows: rows}, nil
}

func wireErr(format string, args ...any) *types.Error {
	return types.NewError(types.CodeSchemaMismatch, fmt.Sprintf(format, args...), nil)
}
