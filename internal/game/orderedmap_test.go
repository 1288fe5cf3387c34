package game

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestOrderedMapMarshalUnmarshalRoundTrip(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("z", 1)
	m.Set("a", 2)
	m.Set("m", 3)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw json.RawMessage
	var keysInWireOrder []string
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		t.Fatalf("read opening delim: %v", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatalf("read key token: %v", err)
		}
		keysInWireOrder = append(keysInWireOrder, tok.(string))
		if err := dec.Decode(&raw); err != nil {
			t.Fatalf("skip value: %v", err)
		}
	}
	if want := []string{"z", "a", "m"}; !stringSlicesEqual(keysInWireOrder, want) {
		t.Fatalf("expected insertion-ordered keys on the wire %v, got %v", want, keysInWireOrder)
	}

	got := NewOrderedMap[int]()
	if err := json.Unmarshal(data, got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !stringSlicesEqual(got.Keys(), m.Keys()) {
		t.Fatalf("key order did not survive round trip: got %v, want %v", got.Keys(), m.Keys())
	}
	for _, k := range m.Keys() {
		want, _ := m.Get(k)
		gotV, ok := got.Get(k)
		if !ok || gotV != want {
			t.Fatalf("value for %q did not survive round trip: got %v, want %v", k, gotV, want)
		}
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
