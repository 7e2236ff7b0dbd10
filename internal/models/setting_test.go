package models

import (
	"reflect"
	"testing"
)

func TestSettingDecodeValue(t *testing.T) {
	cases := []struct {
		name  string
		typ   string
		value string
		want  any
	}{
		{"string passthrough", SettingTypeString, "hello", "hello"},
		{"boolean true", SettingTypeBoolean, "1", true},
		{"boolean word", SettingTypeBoolean, "true", true},
		{"boolean false", SettingTypeBoolean, "0", false},
		{"integer", SettingTypeInteger, "42", 42},
		{"float", SettingTypeFloat, "2.5", 2.5},
		{"json object", SettingTypeJSON, `{"a":1}`, map[string]any{"a": float64(1)}},
		{"malformed boolean", SettingTypeBoolean, "maybe", false},
		{"malformed integer", SettingTypeInteger, "lots", 0},
		{"malformed float", SettingTypeFloat, "pi", 0.0},
		{"malformed json", SettingTypeJSON, "{", nil},
		{"unknown type keeps raw", "color", "red", "red"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Setting{Key: "k", Value: tc.value, Type: tc.typ}
			got := s.DecodeValue()
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("DecodeValue(%q %q) = %#v, want %#v", tc.typ, tc.value, got, tc.want)
			}
		})
	}
}
