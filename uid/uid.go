// Package uid converts raw card identifiers reported by reader drivers into
// the canonical uppercase hexadecimal form used on the wire.
package uid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a raw identifier does not reduce to a
// non-empty hexadecimal string.
var ErrMalformed = errors.New("malformed identifier")

// Shape identifies which representation a driver used for a card identifier.
type Shape int

const (
	ShapeNone   Shape = iota
	ShapeBytes        // binary buffer
	ShapeValues       // ordered collection of byte-sized integers
	ShapeText         // textual hex, possibly with separators
)

func (s Shape) String() string {
	switch s {
	case ShapeBytes:
		return "bytes"
	case ShapeValues:
		return "values"
	case ShapeText:
		return "text"
	default:
		return "none"
	}
}

// Raw is a card identifier exactly as a driver delivered it.
// Only the field matching Shape is meaningful.
type Raw struct {
	Shape  Shape
	Bytes  []byte
	Values []int
	Text   string
}

// FromBytes wraps a binary buffer.
func FromBytes(b []byte) Raw {
	return Raw{Shape: ShapeBytes, Bytes: append([]byte(nil), b...)}
}

// FromValues wraps a numeric array such as [4, 163, 43, 145].
func FromValues(v ...int) Raw {
	return Raw{Shape: ShapeValues, Values: append([]int(nil), v...)}
}

// FromText wraps a textual identifier such as "04:a3:2b:91".
func FromText(s string) Raw {
	return Raw{Shape: ShapeText, Text: s}
}

// IsZero reports whether the driver delivered no identifier at all.
func (r Raw) IsZero() bool {
	switch r.Shape {
	case ShapeBytes:
		return len(r.Bytes) == 0
	case ShapeValues:
		return len(r.Values) == 0
	case ShapeText:
		return r.Text == ""
	default:
		return true
	}
}

func (r Raw) String() string {
	switch r.Shape {
	case ShapeBytes:
		return fmt.Sprintf("bytes%x", r.Bytes)
	case ShapeValues:
		return fmt.Sprintf("values%v", r.Values)
	case ShapeText:
		return fmt.Sprintf("text%q", r.Text)
	default:
		return "none"
	}
}

// Normalize returns the canonical uppercase hex form of r.
// Any failure wraps ErrMalformed.
func Normalize(r Raw) (string, error) {
	var out string
	var err error
	switch r.Shape {
	case ShapeBytes:
		out = strings.ToUpper(hex.EncodeToString(r.Bytes))
	case ShapeValues:
		out, err = fromValues(r.Values)
	case ShapeText:
		out = fromText(r.Text)
	default:
		return "", fmt.Errorf("%w: no identifier", ErrMalformed)
	}
	if err != nil {
		return "", err
	}
	if !valid(out) {
		return "", fmt.Errorf("%w: %s", ErrMalformed, r)
	}
	return out, nil
}

func fromValues(vals []int) (string, error) {
	var b strings.Builder
	b.Grow(len(vals) * 2)
	for i, v := range vals {
		if v < 0 || v > 0xff {
			return "", fmt.Errorf("%w: value %d at index %d is not a byte", ErrMalformed, v, i)
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String(), nil
}

func fromText(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if isHex(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}
