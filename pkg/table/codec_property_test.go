package table

import (
	"fmt"
	"math"
	"testing"

	"pgregory.net/rapid"

	"yqhp/knime-bridge/pkg/types"
)

// drawColumnMap generates a ColumnMap whose cells are already canonical, so
// an encode/marshal/unmarshal/decode cycle must reproduce it exactly.
func drawColumnMap(t *rapid.T) *ColumnMap {
	ncols := rapid.IntRange(1, 4).Draw(t, "ncols")
	nrows := rapid.IntRange(0, 6).Draw(t, "nrows")

	m := NewColumnMap()
	for c := 0; c < ncols; c++ {
		name := fmt.Sprintf("%s_%d", rapid.StringMatching(`[a-z]{1,6}`).Draw(t, "name"), c)
		kind := rapid.IntRange(0, 4).Draw(t, "kind")
		values := make([]any, nrows)
		for r := 0; r < nrows; r++ {
			if rapid.IntRange(0, 9).Draw(t, "missing") == 0 {
				continue // nil cell, the missing-value sentinel
			}
			switch kind {
			case 0:
				values[r] = rapid.String().Draw(t, "s")
			case 1:
				values[r] = rapid.Int64Range(math.MinInt32, math.MaxInt32).Draw(t, "i")
			case 2:
				values[r] = rapid.Int64Range(math.MinInt64+1, math.MaxInt64).Draw(t, "l")
			case 3:
				values[r] = rapid.Float64Range(-1e12, 1e12).Draw(t, "d")
			case 4:
				values[r] = rapid.Bool().Draw(t, "b")
			}
		}
		m.MustAdd(name, values)
	}
	return m
}

func TestRoundTripColumnMap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := drawColumnMap(t)

		dt, err := Encode(original)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		buf, err := MarshalWire(dt)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		back, err := UnmarshalWire(buf)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		decoded, err := DecodeColumnMap(back)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !decoded.Equal(original) {
			t.Fatalf("round trip diverged:\n  in:  %v %v\n  out: %v %v",
				original.Names(), columnsOf(original), decoded.Names(), columnsOf(decoded))
		}
	})
}

func TestRoundTripDataFrameSchema(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := drawColumnMap(t)

		dt, err := Encode(original)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(dt.Rows) == 0 {
			t.Skip("empty frame")
		}
		df, err := DecodeDataFrame(dt)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got, want := df.Nrow(), original.NumRows(); got != want {
			t.Fatalf("row count: got %d, want %d", got, want)
		}
		names := df.Names()
		for i, want := range original.Names() {
			if names[i] != want {
				t.Fatalf("column %d: got %q, want %q", i, names[i], want)
			}
		}
	})
}

func TestDecodeNeverPartial(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := drawColumnMap(t)
		dt, err := Encode(original)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(dt.Rows) == 0 {
			t.Skip("no row to corrupt")
		}

		// Truncating any row must fail the whole decode, returning nothing.
		victim := rapid.IntRange(0, len(dt.Rows)-1).Draw(t, "victim")
		dt.Rows[victim] = dt.Rows[victim][:len(dt.Rows[victim])-1]

		m, err := DecodeColumnMap(dt)
		if !types.IsSchemaMismatch(err) {
			t.Fatalf("want SCHEMA_MISMATCH, got %v", err)
		}
		if m != nil {
			t.Fatalf("partial result returned alongside error")
		}
	})
}

func columnsOf(m *ColumnMap) [][]any {
	out := make([][]any, 0, m.NumCols())
	for _, name := range m.Names() {
		out = append(out, m.Column(name))
	}
	return out
}
