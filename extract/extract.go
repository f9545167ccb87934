// Package extract picks a representative "first item" out of a message body.
//
// Bodies are expected to be JSON documents. Objects are decoded into an
// ordered representation so the first key is the first key written in
// the document, not whatever an unordered map happens to yield.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Item is the result of Extract.
// Absent items report Found=false and carry no value.
type Item struct {
	Value any
	Found bool
}

// Absent is the item returned for malformed bodies.
var Absent = Item{}

// String renders the item as compact JSON, or <absent>.
func (i Item) String() string {
	if !i.Found {
		return "<absent>"
	}
	buf, err := json.Marshal(i.Value)
	if err != nil {
		return fmt.Sprintf("%v", i.Value)
	}
	return string(buf)
}

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object with members kept in document order.
type Object []Member

// Get returns the value of the first member named key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// set stores value under key. A repeated key keeps its first position
// and takes the last value, so members stay unique.
func (o Object) set(key string, value any) Object {
	for i := range o {
		if o[i].Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, Member{Key: key, Value: value})
}

// MarshalJSON encodes the object preserving member order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, errKey := json.Marshal(m.Key)
		if errKey != nil {
			return nil, errKey
		}
		v, errValue := json.Marshal(m.Value)
		if errValue != nil {
			return nil, errValue
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Extract returns the first item of body.
//
//   - non-empty array: first element
//   - non-empty object: value of the first key in document order
//   - empty array, empty object, scalar: the value itself
//   - malformed JSON: Absent
func Extract(body string) Item {
	value, err := Parse(body)
	if err != nil {
		return Absent
	}

	switch v := value.(type) {
	case []any:
		if len(v) > 0 {
			return Item{Value: v[0], Found: true}
		}
	case Object:
		if len(v) > 0 {
			return Item{Value: v[0].Value, Found: true}
		}
	}

	return Item{Value: value, Found: true}
}

// ErrMalformed reports a body that is not a single valid JSON document.
var ErrMalformed = errors.New("extract: malformed json")

// Parse decodes body into ordered values: Object for objects, []any for
// arrays, json.Number for numbers, plus string, bool and nil.
// Numbers out of float64 range are kept as their exact text.
func Parse(body string) (any, error) {
	if err := checkSyntax(body); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	tok, errTok := dec.Token()
	if errTok != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, errTok)
	}

	value, errValue := readValue(dec, tok)
	if errValue != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, errValue)
	}

	return value, nil
}

// checkSyntax accepts exactly one JSON document. The token stream alone
// tolerates missing separators, so the grammar is checked with a full
// decode. UseNumber keeps huge numbers from failing a float64 conversion.
func checkSyntax(body string) error {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after document", ErrMalformed)
	}

	return nil
}

// readValue builds the value starting at tok. The input has already been
// validated, so the token stream is well formed.
func readValue(dec *json.Decoder, tok json.Token) (any, error) {
	delim, isDelim := tok.(json.Delim)
	if !isDelim {
		if n, isNumber := tok.(json.Number); isNumber {
			// the decoder may alias its read buffer
			return json.Number(strings.Clone(string(n))), nil
		}
		return tok, nil
	}

	switch delim {
	case '[':
		list := []any{}
		for {
			t, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if t == json.Delim(']') {
				return list, nil
			}
			v, errValue := readValue(dec, t)
			if errValue != nil {
				return nil, errValue
			}
			list = append(list, v)
		}
	case '{':
		obj := Object{}
		for {
			t, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if t == json.Delim('}') {
				return obj, nil
			}
			key, isKey := t.(string)
			if !isKey {
				return nil, fmt.Errorf("unexpected object key token: %v", t)
			}
			vt, errValueTok := dec.Token()
			if errValueTok != nil {
				return nil, errValueTok
			}
			v, errValue := readValue(dec, vt)
			if errValue != nil {
				return nil, errValue
			}
			obj = obj.set(key, v)
		}
	}

	return nil, fmt.Errorf("unexpected delimiter: %v", delim)
}
