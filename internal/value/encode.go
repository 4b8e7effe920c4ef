// Copyright confd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hyperair/confd/internal/cerr"
)

// tag is the leading byte of the canonical encoding identifying a Value's
// variant: i b f s c l p v.
func (t Type) tag() byte {
	switch t {
	case Int:
		return 'i'
	case Bool:
		return 'b'
	case Float:
		return 'f'
	case String:
		return 's'
	case Schema:
		return 'c'
	case List:
		return 'l'
	case Pair:
		return 'p'
	default:
		return 'v'
	}
}

func tagToType(b byte) (Type, error) {
	switch b {
	case 'i':
		return Int, nil
	case 'b':
		return Bool, nil
	case 'f':
		return Float, nil
	case 's':
		return String, nil
	case 'c':
		return Schema, nil
	case 'l':
		return List, nil
	case 'p':
		return Pair, nil
	case 'v':
		return Invalid, nil
	default:
		return Invalid, cerr.New(cerr.ParseError, "unknown encoding tag %q", b)
	}
}

// quote wraps s in the canonical `"…"` quoting, escaping backslash and
// double-quote.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// unquote reverses quote, returning the unescaped payload and the number
// of input bytes consumed (including both surrounding quotes).
func unquote(s string) (string, int, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", 0, cerr.New(cerr.ParseError, "expected quoted string")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, cerr.New(cerr.ParseError, "dangling escape in quoted string")
			}
			b.WriteByte(s[i+1])
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, cerr.New(cerr.ParseError, "unterminated quoted string")
}

// Encode produces the canonical wire encoding of v. Numeric payloads are
// rendered with strconv, which (unlike C's printf family) is always
// locale-independent, pinning the effective locale to C as required.
func (v *Value) Encode() (string, error) {
	if v == nil {
		return "v", nil
	}
	switch v.typ {
	case Invalid:
		return "v", nil
	case Int:
		return "i" + strconv.Itoa(int(v.i)), nil
	case Bool:
		return "b" + strconv.FormatBool(v.b), nil
	case Float:
		return "f" + strconv.FormatFloat(v.f, 'g', -1, 64), nil
	case String:
		return "s" + quote(v.s), nil
	case Schema:
		return encodeSchema(v.schema)
	case List:
		var parts []string
		for _, e := range v.list {
			enc, err := e.Encode()
			if err != nil {
				return "", err
			}
			parts = append(parts, quote(enc))
		}
		return fmt.Sprintf("l%c%s", v.elemT.tag(), strings.Join(parts, ",")), nil
	case Pair:
		carEnc, err := v.car.Encode()
		if err != nil {
			return "", err
		}
		cdrEnc, err := v.cdr.Encode()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("p%s,%s", quote(carEnc), quote(cdrEnc)), nil
	default:
		return "", cerr.New(cerr.ParseError, "cannot encode type %s", v.typ.TypeName())
	}
}

// encodeSchema packs a SchemaDescriptor's fields into a single quoted
// semicolon-delimited payload tagged 'c'.
func encodeSchema(s *SchemaDescriptor) (string, error) {
	if s == nil {
		return "c" + quote(""), nil
	}
	defEnc := "-"
	if s.Default != nil {
		enc, err := s.Default.Encode()
		if err != nil {
			return "", err
		}
		defEnc = enc
	}
	fields := []string{
		string(s.ValueType.tag()),
		string(s.ListElementType.tag()),
		string(s.CarType.tag()),
		string(s.CdrType.tag()),
		quote(s.Locale),
		quote(s.Owner),
		quote(s.ShortDesc),
		quote(s.LongDesc),
		quote(defEnc),
	}
	return "c" + quote(strings.Join(fields, ";")), nil
}

// Decode parses the canonical wire encoding produced by Encode. Malformed
// list elements are dropped with a logged warning rather than failing the
// whole decode (§8 scenario 3): the surviving elements form the list.
func Decode(s string) (*Value, error) {
	return decode(s, logrus.StandardLogger())
}

// DecodeWithLogger is Decode but logs dropped list elements to log instead
// of the package-level standard logger.
func DecodeWithLogger(s string, log logrus.FieldLogger) (*Value, error) {
	return decode(s, log)
}

func decode(s string, log logrus.FieldLogger) (*Value, error) {
	if len(s) == 0 {
		return nil, cerr.New(cerr.ParseError, "empty encoding")
	}
	t, err := tagToType(s[0])
	if err != nil {
		return nil, err
	}
	rest := s[1:]
	switch t {
	case Invalid:
		return NewInvalid(), nil
	case Int:
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "decoding int")
		}
		return NewInt(int32(n)), nil
	case Bool:
		b, err := strconv.ParseBool(rest)
		if err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "decoding bool")
		}
		return NewBool(b), nil
	case Float:
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "decoding float")
		}
		return NewFloat(f), nil
	case String:
		unq, n, err := unquote(rest)
		if err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "decoding string")
		}
		if n != len(rest) {
			return nil, cerr.New(cerr.ParseError, "trailing garbage after string encoding")
		}
		return NewString(unq), nil
	case Schema:
		return decodeSchema(rest, log)
	case List:
		return decodeList(rest, log)
	case Pair:
		return decodePair(rest, log)
	default:
		return nil, cerr.New(cerr.ParseError, "unsupported top-level tag")
	}
}

func decodeSchema(rest string, log logrus.FieldLogger) (*Value, error) {
	payload, n, err := unquote(rest)
	if err != nil {
		return nil, cerr.Wrap(cerr.ParseError, err, "decoding schema payload")
	}
	if n != len(rest) {
		return nil, cerr.New(cerr.ParseError, "trailing garbage after schema encoding")
	}
	fields := splitUnescaped(payload, ';')
	if len(fields) != 9 {
		return nil, cerr.New(cerr.ParseError, "malformed schema encoding: want 9 fields, got %d", len(fields))
	}
	vt, err := tagToType(fields[0][0])
	if err != nil {
		return nil, err
	}
	let, err := tagToType(fields[1][0])
	if err != nil {
		return nil, err
	}
	cat, err := tagToType(fields[2][0])
	if err != nil {
		return nil, err
	}
	cdt, err := tagToType(fields[3][0])
	if err != nil {
		return nil, err
	}
	locale, _, err := unquote(fields[4])
	if err != nil {
		return nil, err
	}
	owner, _, err := unquote(fields[5])
	if err != nil {
		return nil, err
	}
	short, _, err := unquote(fields[6])
	if err != nil {
		return nil, err
	}
	long, _, err := unquote(fields[7])
	if err != nil {
		return nil, err
	}
	defRaw, _, err := unquote(fields[8])
	if err != nil {
		return nil, err
	}
	sd := &SchemaDescriptor{
		ValueType:       vt,
		ListElementType: let,
		CarType:         cat,
		CdrType:         cdt,
		Locale:          locale,
		Owner:           owner,
		ShortDesc:       short,
		LongDesc:        long,
	}
	if defRaw != "-" {
		def, err := decode(defRaw, log)
		if err != nil {
			return nil, err
		}
		sd.Default = def
	}
	return NewSchema(sd), nil
}

// splitUnescaped splits on sep, ignoring occurrences of sep inside a
// quoted field (a quoted field runs from an unescaped '"' to the next
// unescaped '"').
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == sep && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func decodeList(rest string, log logrus.FieldLogger) (*Value, error) {
	if len(rest) == 0 {
		return nil, cerr.New(cerr.ParseError, "truncated list encoding")
	}
	elemT, err := tagToType(rest[0])
	if err != nil {
		return nil, err
	}
	body := rest[1:]
	var elems []*Value
	for _, enc := range splitUnescaped(body, ',') {
		if enc == "" {
			continue
		}
		unq, n, err := unquote(enc)
		if err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "decoding list element wrapper")
		}
		if n != len(enc) {
			return nil, cerr.New(cerr.ParseError, "trailing garbage in list element wrapper")
		}
		el, err := decode(unq, log)
		if err != nil {
			log.WithError(err).Warn("dropping malformed list element during decode")
			continue
		}
		if el.Type() != elemT {
			log.WithField("got", el.Type().TypeName()).WithField("want", elemT.TypeName()).
				Warn("dropping list element of wrong type during decode")
			continue
		}
		elems = append(elems, el)
	}
	return NewList(elemT, elems)
}

func decodePair(rest string, log logrus.FieldLogger) (*Value, error) {
	parts := splitUnescaped(rest, ',')
	if len(parts) != 2 {
		return nil, cerr.New(cerr.ParseError, "malformed pair encoding: want 2 parts, got %d", len(parts))
	}
	carRaw, n, err := unquote(parts[0])
	if err != nil {
		return nil, cerr.Wrap(cerr.ParseError, err, "decoding pair car")
	}
	if n != len(parts[0]) {
		return nil, cerr.New(cerr.ParseError, "trailing garbage in pair car wrapper")
	}
	cdrRaw, n, err := unquote(parts[1])
	if err != nil {
		return nil, cerr.Wrap(cerr.ParseError, err, "decoding pair cdr")
	}
	if n != len(parts[1]) {
		return nil, cerr.New(cerr.ParseError, "trailing garbage in pair cdr wrapper")
	}
	car, err := decode(carRaw, log)
	if err != nil {
		return nil, err
	}
	cdr, err := decode(cdrRaw, log)
	if err != nil {
		return nil, err
	}
	return NewPair(car, cdr)
}
