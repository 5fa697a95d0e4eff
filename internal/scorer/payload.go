package scorer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Payload is the decoded shape of a scorer value. It is one of Absent,
// Scalar, Mapping or Sequence.
type Payload interface {
	isPayload()
}

// Absent is a missing or null value.
type Absent struct{}

// ScalarKind tells how a scalar was written on the wire.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarNumber
	ScalarBool
)

// Scalar is a string, number or boolean. Text holds the string value, the
// number literal, or "true"/"false".
type Scalar struct {
	Kind ScalarKind
	Text string
}

// Entry is one key of a Mapping.
type Entry struct {
	Key   string
	Value Payload
}

// Mapping is a JSON object with its keys in wire order.
type Mapping struct {
	Entries []Entry
}

// Sequence is a JSON array.
type Sequence struct {
	Items []Payload
}

func (Absent) isPayload()   {}
func (Scalar) isPayload()   {}
func (Mapping) isPayload()  {}
func (Sequence) isPayload() {}

// String builds a string scalar.
func String(s string) Scalar { return Scalar{Kind: ScalarString, Text: s} }

// Number builds a number scalar.
func Number(n float64) Scalar {
	return Scalar{Kind: ScalarNumber, Text: strconv.FormatFloat(n, 'f', -1, 64)}
}

// Bit reports whether the scalar is the string "1"/"0" or the number 1/0.
// Strings are compared literally; numbers by value.
func (s Scalar) Bit() (int, bool) {
	switch s.Kind {
	case ScalarString:
		switch s.Text {
		case "1":
			return 1, true
		case "0":
			return 0, true
		}
	case ScalarNumber:
		f, err := strconv.ParseFloat(s.Text, 64)
		if err != nil {
			return 0, false
		}
		switch f {
		case 1:
			return 1, true
		case 0:
			return 0, true
		}
	}
	return 0, false
}

// Lookup returns the value stored under key. Later duplicates win, as in
// JSON.parse.
func (m Mapping) Lookup(key string) (Payload, bool) {
	var (
		out   Payload
		found bool
	)
	for _, e := range m.Entries {
		if e.Key == key {
			out, found = e.Value, true
		}
	}
	return out, found
}

// Values returns the mapping's values in key order.
func (m Mapping) Values() []Payload {
	out := make([]Payload, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Value)
	}
	return out
}

// ParsePayload decodes a JSON document into a Payload, keeping object key
// order. Empty input is Absent.
func ParsePayload(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Absent{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	p, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode payload: trailing data after JSON value")
	}
	return p, nil
}

func decodeValue(dec *json.Decoder) (Payload, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return Absent{}, nil
	case string:
		return String(t), nil
	case json.Number:
		return Scalar{Kind: ScalarNumber, Text: t.String()}, nil
	case bool:
		return Scalar{Kind: ScalarBool, Text: strconv.FormatBool(t)}, nil
	case json.Delim:
		switch t {
		case '{':
			var m Mapping
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("decode payload: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("decode payload: unexpected object key %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				m.Entries = append(m.Entries, Entry{Key: key, Value: v})
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
			return m, nil
		case '[':
			var s Sequence
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				s.Items = append(s.Items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
			return s, nil
		}
	}
	return nil, fmt.Errorf("decode payload: unexpected token %v", tok)
}
