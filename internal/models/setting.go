package models

import (
	"encoding/json"
	"strconv"
)

// Setting value types understood by DecodeValue.
const (
	SettingTypeString  = "string"
	SettingTypeBoolean = "boolean"
	SettingTypeInteger = "integer"
	SettingTypeFloat   = "float"
	SettingTypeJSON    = "json"
)

// Known setting keys.
const (
	SettingShowRequestList = "show_request_list"
)

// Setting is one key/value row of operator-tunable configuration. Values are
// stored as text and decoded according to Type.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// DecodeValue interprets the raw value according to the setting's type.
// Malformed values fall back to the zero value of the declared type.
func (s *Setting) DecodeValue() any {
	switch s.Type {
	case SettingTypeBoolean:
		v, _ := strconv.ParseBool(s.Value)
		return v
	case SettingTypeInteger:
		v, _ := strconv.Atoi(s.Value)
		return v
	case SettingTypeFloat:
		v, _ := strconv.ParseFloat(s.Value, 64)
		return v
	case SettingTypeJSON:
		var v any
		_ = json.Unmarshal([]byte(s.Value), &v)
		return v
	default:
		return s.Value
	}
}
