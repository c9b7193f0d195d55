package godb

import (
	"bytes"
	"testing"

	"github.com/d4l3k/messagediff"
)

// TestTupleWireRoundTrip writes a table of tuples to their big-endian wire
// format and reads them back, using messagediff to produce a readable diff
// on failure rather than a bare struct dump.
func TestTupleWireRoundTrip(t *testing.T) {
	desc := TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: StringType},
		{Fname: "age", Ftype: IntType},
	}}

	cases := []*Tuple{
		{Desc: desc, Fields: []DBValue{StringField{Value: "annie"}, IntField{Value: 30}}},
		{Desc: desc, Fields: []DBValue{StringField{Value: ""}, IntField{Value: -1}}},
		{Desc: desc, Fields: []DBValue{StringField{Value: "a long enough string to matter"}, IntField{Value: 1 << 20}}},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		if err := want.writeTo(&buf); err != nil {
			t.Fatalf("writeTo: %v", err)
		}
		got, err := readTupleFrom(&buf, &desc)
		if err != nil {
			t.Fatalf("readTupleFrom: %v", err)
		}
		if diff, equal := messagediff.PrettyDiff(want, got); !equal {
			t.Fatalf("round trip mismatch:\n%s", diff)
		}
	}
}
