// Package table converts between the engine's columnar wire representation
// and the in-process tabular forms.
//
// Two native forms are supported: ColumnMap, an insertion-ordered mapping of
// column names to value slices, and gota's dataframe.DataFrame for callers
// that want a labeled two-dimensional structure. The codec is pure data
// transformation; it performs no I/O.
//
// Conversions normalize cell values to a canonical set: string, int64 (for
// both int and long columns), float64, bool, and nil as the missing-value
// sentinel. The round-trip Decode(Encode(T)) == T holds modulo that
// normalization.
package table
