package registers

import (
	"encoding/json"
	"strconv"
)

// Value is a decoded register: either text or a number. Integer and scaled
// readings share the float64 carrier.
type Value struct {
	text   string
	number float64
	isText bool
}

func TextValue(s string) Value {
	return Value{text: s, isText: true}
}

func NumberValue(f float64) Value {
	return Value{number: f}
}

func (v Value) IsText() bool {
	return v.isText
}

// Text returns the string payload, or "" for numbers.
func (v Value) Text() string {
	return v.text
}

// Number returns the numeric payload, or 0 for text.
func (v Value) Number() float64 {
	return v.number
}

// String formats numbers with the shortest representation that round-trips,
// so 230.0 prints as "230" and 0.5 as "0.5".
func (v Value) String() string {
	if v.isText {
		return v.text
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isText {
		return json.Marshal(v.text)
	}
	return json.Marshal(v.number)
}
