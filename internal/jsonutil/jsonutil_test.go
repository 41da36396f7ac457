package jsonutil

import (
	"encoding/json"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := EncodeToJSONRaw(sample{Name: "a", Count: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeJSONRaw[sample](raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Fatalf("round trip lost data: %+v", got)
	}
}

func TestDecodeJSONRaw_EmptyYieldsZero(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, []byte(""), []byte("  \n")} {
		got, err := DecodeJSONRaw[sample](raw)
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if got != (sample{}) {
			t.Fatalf("zero value expected, got %+v", got)
		}
	}
}

func TestDecodeJSONRaw_Strict(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "unknown_field", raw: `{"name":"a","bogus":1}`},
		{name: "trailing_data", raw: `{"name":"a"} {"name":"b"}`},
		{name: "wrong_type", raw: `{"name":3}`},
		{name: "not_json", raw: `name=a`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeJSONRaw[sample](json.RawMessage(tc.raw)); err == nil {
				t.Fatalf("accepted %q", tc.raw)
			}
		})
	}
}
