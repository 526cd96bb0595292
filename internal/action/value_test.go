package action

import (
	"encoding/json"
	"testing"
)

func TestValueUnmarshalPreservesShape(t *testing.T) {
	var p Params
	raw := `{"s":"hi","n":4.5,"i":3,"b":true,"arr":["a","b"],"obj":{"k":"v"},"nul":null}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if s, ok := p.String("s"); !ok || s != "hi" {
		t.Fatalf("String(s) = (%q, %v), want (hi, true)", s, ok)
	}
	if f, ok := p.Float64("n"); !ok || f != 4.5 {
		t.Fatalf("Float64(n) = (%v, %v), want (4.5, true)", f, ok)
	}
	if i, ok := p["i"].Int64(); !ok || i != 3 {
		t.Fatalf("Int64(i) = (%d, %v), want (3, true)", i, ok)
	}
	if b, ok := p.Bool("b"); !ok || !b {
		t.Fatalf("Bool(b) = (%v, %v), want (true, true)", b, ok)
	}
	if arr, ok := p.Strings("arr"); !ok || len(arr) != 2 || arr[1] != "b" {
		t.Fatalf("Strings(arr) = (%v, %v), want ([a b], true)", arr, ok)
	}
	if p["obj"].Kind != KindObject {
		t.Fatalf("obj kind = %v, want object", p["obj"].Kind)
	}
	if p.Has("nul") {
		t.Fatalf("Has(nul) = true, want false for null value")
	}
}

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := Value{Kind: KindString, Str: "42"}
	if _, ok := v.Int64(); ok {
		t.Fatalf("Int64 on string value ok = true, want false")
	}

	frac := Value{Kind: KindNumber, Num: 1.5}
	if _, ok := frac.Int64(); ok {
		t.Fatalf("Int64 on fractional number ok = true, want false")
	}

	mixed := Value{Kind: KindArray, Array: []Value{{Kind: KindString, Str: "a"}, {Kind: KindNumber, Num: 1}}}
	if _, ok := mixed.Strings(); ok {
		t.Fatalf("Strings on mixed array ok = true, want false")
	}
}
