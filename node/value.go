package node

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the tagged property variant.
type ValueKind string

const (
	KindNumber ValueKind = "number"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
	KindVector ValueKind = "vector3"
	KindColor  ValueKind = "color"
)

// Value is one property value. Exactly one payload field is meaningful,
// selected by Kind; the others stay at their zero value so the wire encoding
// omits them. Properties have no fixed schema; the set of keys varies by
// node class.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Num   float64   `json:"num,omitempty"`
	Str   string    `json:"str,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
	Vec   *Vector3  `json:"vec,omitempty"`
	Color *Color    `json:"color,omitempty"`
}

// Vector3 is a 3-component spatial value (position, size, orientation).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is an RGB triple with 0-255 components.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Number builds a numeric value.
func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// String builds a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Bool builds a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Vector builds a 3-component vector value.
func Vector(x, y, z float64) Value {
	return Value{Kind: KindVector, Vec: &Vector3{X: x, Y: y, Z: z}}
}

// RGB builds a color value.
func RGB(r, g, b uint8) Value {
	return Value{Kind: KindColor, Color: &Color{R: r, G: g, B: b}}
}

// Format renders the value for display. Numbers drop trailing zeros, vectors
// render as "x, y, z", colors as "r, g, b".
func (v Value) Format() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindVector:
		if v.Vec == nil {
			return "0, 0, 0"
		}
		return fmt.Sprintf("%s, %s, %s",
			strconv.FormatFloat(v.Vec.X, 'f', -1, 64),
			strconv.FormatFloat(v.Vec.Y, 'f', -1, 64),
			strconv.FormatFloat(v.Vec.Z, 'f', -1, 64))
	case KindColor:
		if v.Color == nil {
			return "0, 0, 0"
		}
		return fmt.Sprintf("%d, %d, %d", v.Color.R, v.Color.G, v.Color.B)
	default:
		return ""
	}
}

// appendCanonical writes a deterministic byte encoding of the value for
// hashing. Floats use the shortest round-trip form so equal values always
// encode identically regardless of how they were produced.
func (v Value) appendCanonical(dst []byte) []byte {
	dst = append(dst, byte(kindTag(v.Kind)))
	switch v.Kind {
	case KindNumber:
		dst = strconv.AppendFloat(dst, v.Num, 'g', -1, 64)
	case KindString:
		dst = append(dst, v.Str...)
	case KindBool:
		if v.Bool {
			dst = append(dst, '1')
		} else {
			dst = append(dst, '0')
		}
	case KindVector:
		if v.Vec != nil {
			dst = strconv.AppendFloat(dst, v.Vec.X, 'g', -1, 64)
			dst = append(dst, ',')
			dst = strconv.AppendFloat(dst, v.Vec.Y, 'g', -1, 64)
			dst = append(dst, ',')
			dst = strconv.AppendFloat(dst, v.Vec.Z, 'g', -1, 64)
		}
	case KindColor:
		if v.Color != nil {
			dst = append(dst, v.Color.R, v.Color.G, v.Color.B)
		}
	}
	return dst
}

func kindTag(k ValueKind) int {
	switch k {
	case KindNumber:
		return 'n'
	case KindString:
		return 's'
	case KindBool:
		return 'b'
	case KindVector:
		return 'v'
	case KindColor:
		return 'c'
	default:
		return '?'
	}
}
