package registers

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrDecode is returned when raw words cannot be turned into a Value.
var ErrDecode = errors.New("decode error")

// Decode converts the raw holding register words of r into a Value. Words are
// big-endian, high word first for 32-bit kinds.
func Decode(r Register, words []uint16) (Value, error) {
	if len(words) != int(r.Words) {
		return Value{}, fmt.Errorf("%w: %s expects %d words, got %d", ErrDecode, r.Name, r.Words, len(words))
	}
	if r.Gain == 0 {
		return Value{}, fmt.Errorf("%w: %s has zero gain", ErrDecode, r.Name)
	}

	gain := float64(r.Gain)
	switch r.Kind {
	case KindString:
		return TextValue(decodeString(words)), nil
	case KindU16:
		return NumberValue(float64(words[0]) / gain), nil
	case KindI16:
		return NumberValue(float64(int16(words[0])) / gain), nil
	case KindU32:
		return NumberValue(float64(join(words[0], words[1])) / gain), nil
	case KindI32:
		return NumberValue(float64(int32(join(words[0], words[1]))) / gain), nil
	default:
		return Value{}, fmt.Errorf("%w: %s has unknown kind %s", ErrDecode, r.Name, r.Kind)
	}
}

func join(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// decodeString drops every NUL byte, wherever it sits, and replaces invalid
// UTF-8 sequences with U+FFFD. Some inverters pad model and serial fields
// with garbage, so this never fails.
func decodeString(words []uint16) string {
	buf := make([]byte, 0, len(words)*2)
	for _, w := range words {
		buf = binary.BigEndian.AppendUint16(buf, w)
	}
	buf = bytes.ReplaceAll(buf, []byte{0}, nil)
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}
