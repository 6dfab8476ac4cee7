// Package jsonutil decodes loosely typed JSON sent by admin clients.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleStringValue converts a scalar JSON value to a string. Numbers keep
// their exact decimal form, so large integer IDs survive unchanged. Returns
// "" for null or empty input and the raw text for objects and arrays.
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var numVal json.Number
	if err := dec.Decode(&numVal); err == nil {
		if i, err := numVal.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return string(raw)
}

// StringList is a list of strings that also accepts numbers and booleans as
// elements, or a single scalar in place of the list.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		*l = StringList{FlexibleStringValue(data)}
		return nil
	}

	out := make(StringList, 0, len(elems))
	for _, e := range elems {
		out = append(out, FlexibleStringValue(e))
	}
	*l = out
	return nil
}
