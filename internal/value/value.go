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

// Package value implements the recursive tagged-variant value type shared
// by every layer of confd: scalars, homogeneous lists, pairs and schema
// descriptors, plus their canonical wire encoding.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperair/confd/internal/cerr"
)

// Type is the tag of a Value's variant.
type Type int

const (
	Invalid Type = iota
	Int
	Float
	Bool
	String
	Schema
	List
	Pair
)

// ordinal fixes the total order used by Compare: type ordinal first, then
// per-type natural order, matching the declared variant order in the data
// model (Int, Float, Bool, String, Schema, List, Pair, Invalid last).
var ordinal = map[Type]int{
	Int: 0, Float: 1, Bool: 2, String: 3, Schema: 4, List: 5, Pair: 6, Invalid: 7,
}

// TypeName renders a Type the way the CLI's --type flag and the schema
// install file expect it.
func (t Type) TypeName() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Schema:
		return "schema"
	case List:
		return "list"
	case Pair:
		return "pair"
	default:
		return "invalid"
	}
}

// TypeFromName is the inverse of TypeName.
func TypeFromName(name string) (Type, error) {
	switch name {
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "bool":
		return Bool, nil
	case "string":
		return String, nil
	case "schema":
		return Schema, nil
	case "list":
		return List, nil
	case "pair":
		return Pair, nil
	case "invalid", "":
		return Invalid, nil
	default:
		return Invalid, cerr.New(cerr.ParseError, "unknown value type %q", name)
	}
}

// SchemaDescriptor is the subset of internal/schema.Schema a Value needs to
// carry for the Schema variant; defined here (rather than importing
// internal/schema) to avoid an import cycle, since internal/schema embeds a
// default Value.
type SchemaDescriptor struct {
	ValueType       Type
	ListElementType Type
	CarType         Type
	CdrType         Type
	Locale          string
	Owner           string
	ShortDesc       string
	LongDesc        string
	Default         *Value
}

// Value is the recursive tagged-variant value.
type Value struct {
	typ    Type
	i      int32
	f      float64
	b      bool
	s      string
	schema *SchemaDescriptor
	elemT  Type // List element type
	list   []*Value
	car    *Value
	cdr    *Value
}

// New creates a zero-valued Value of the given type. List and Pair values
// created via New have no elements and no car/cdr; NewList and NewPair
// build populated ones.
func New(t Type) *Value {
	return &Value{typ: t}
}

func NewInt(i int32) *Value      { return &Value{typ: Int, i: i} }
func NewFloat(f float64) *Value  { return &Value{typ: Float, f: f} }
func NewBool(b bool) *Value      { return &Value{typ: Bool, b: b} }
func NewString(s string) *Value  { return &Value{typ: String, s: s} }
func NewInvalid() *Value         { return &Value{typ: Invalid} }

func NewSchema(s *SchemaDescriptor) *Value {
	return &Value{typ: Schema, schema: s}
}

// NewList constructs a homogeneous list. elemT must be one of
// Int/Float/Bool/String/Schema; elems must already be of that type.
func NewList(elemT Type, elems []*Value) (*Value, error) {
	v := &Value{typ: List, elemT: elemT, list: elems}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// NewPair constructs a pair. Neither side may itself be a List or Pair.
func NewPair(car, cdr *Value) (*Value, error) {
	v := &Value{typ: Pair, car: car, cdr: cdr}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Value) Type() Type { return v.typ }

func (v *Value) GetInt() (int32, error) {
	if v.typ != Int {
		return 0, cerr.New(cerr.TypeMismatch, "value is %s, not int", v.typ.TypeName())
	}
	return v.i, nil
}

func (v *Value) GetFloat() (float64, error) {
	if v.typ != Float {
		return 0, cerr.New(cerr.TypeMismatch, "value is %s, not float", v.typ.TypeName())
	}
	return v.f, nil
}

func (v *Value) GetBool() (bool, error) {
	if v.typ != Bool {
		return false, cerr.New(cerr.TypeMismatch, "value is %s, not bool", v.typ.TypeName())
	}
	return v.b, nil
}

func (v *Value) GetString() (string, error) {
	if v.typ != String {
		return "", cerr.New(cerr.TypeMismatch, "value is %s, not string", v.typ.TypeName())
	}
	return v.s, nil
}

func (v *Value) GetSchema() (*SchemaDescriptor, error) {
	if v.typ != Schema {
		return nil, cerr.New(cerr.TypeMismatch, "value is %s, not schema", v.typ.TypeName())
	}
	return v.schema, nil
}

func (v *Value) GetList() ([]*Value, Type, error) {
	if v.typ != List {
		return nil, Invalid, cerr.New(cerr.TypeMismatch, "value is %s, not list", v.typ.TypeName())
	}
	return v.list, v.elemT, nil
}

func (v *Value) GetPair() (car, cdr *Value, err error) {
	if v.typ != Pair {
		return nil, nil, cerr.New(cerr.TypeMismatch, "value is %s, not pair", v.typ.TypeName())
	}
	return v.car, v.cdr, nil
}

// elementTypeOK reports whether t is a legal element type for a list or a
// side of a pair: scalars and Schema only, never List or Pair themselves.
func elementTypeOK(t Type) bool {
	switch t {
	case Int, Float, Bool, String, Schema:
		return true
	default:
		return false
	}
}

// Validate checks the invariants of §3: UTF-8 string payloads, homogeneous
// list elements matching the declared element type, and no nested
// lists/pairs inside list/pair element positions.
func (v *Value) Validate() error {
	if v == nil {
		return cerr.New(cerr.Failed, "nil value")
	}
	switch v.typ {
	case String:
		if !utf8.ValidString(v.s) {
			return cerr.New(cerr.ParseError, "string value is not valid UTF-8")
		}
	case List:
		if !elementTypeOK(v.elemT) {
			return cerr.New(cerr.ParseError, "list element type %s is not a scalar/schema type", v.elemT.TypeName())
		}
		for i, e := range v.list {
			if e.Type() != v.elemT {
				return cerr.New(cerr.TypeMismatch, "list element %d has type %s, want %s", i, e.Type().TypeName(), v.elemT.TypeName())
			}
			if err := e.Validate(); err != nil {
				return err
			}
		}
	case Pair:
		if v.car == nil || v.cdr == nil {
			return cerr.New(cerr.ParseError, "pair missing car or cdr")
		}
		if !elementTypeOK(v.car.Type()) || !elementTypeOK(v.cdr.Type()) {
			return cerr.New(cerr.ParseError, "pair sides must be scalar/schema types, not list/pair")
		}
		if err := v.car.Validate(); err != nil {
			return err
		}
		if err := v.cdr.Validate(); err != nil {
			return err
		}
	case Schema:
		if v.schema != nil && v.schema.Default != nil {
			if err := v.schema.Default.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy returns a deep copy of v.
func (v *Value) Copy() *Value {
	if v == nil {
		return nil
	}
	cp := *v
	if v.list != nil {
		cp.list = make([]*Value, len(v.list))
		for i, e := range v.list {
			cp.list[i] = e.Copy()
		}
	}
	if v.car != nil {
		cp.car = v.car.Copy()
	}
	if v.cdr != nil {
		cp.cdr = v.cdr.Copy()
	}
	if v.schema != nil {
		s := *v.schema
		if v.schema.Default != nil {
			s.Default = v.schema.Default.Copy()
		}
		cp.schema = &s
	}
	return &cp
}

// compareSchema implements the Schema ordering of §4.1: type, short_desc,
// long_desc, locale, then element types.
func compareSchema(a, b *SchemaDescriptor) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if d := ordinal[a.ValueType] - ordinal[b.ValueType]; d != 0 {
		return sign(d)
	}
	if d := strings.Compare(a.ShortDesc, b.ShortDesc); d != 0 {
		return d
	}
	if d := strings.Compare(a.LongDesc, b.LongDesc); d != 0 {
		return d
	}
	if d := strings.Compare(a.Locale, b.Locale); d != 0 {
		return d
	}
	if d := ordinal[a.ListElementType] - ordinal[b.ListElementType]; d != 0 {
		return sign(d)
	}
	if d := ordinal[a.CarType] - ordinal[b.CarType]; d != 0 {
		return sign(d)
	}
	return sign(ordinal[a.CdrType] - ordinal[b.CdrType])
}

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}

// Compare imposes the stable total order of §4.1 on Values: type ordinal
// first, then per-type natural order (Pair: car then cdr; List:
// lexicographic; Schema: as in compareSchema).
func Compare(a, b *Value) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if d := ordinal[a.typ] - ordinal[b.typ]; d != 0 {
		return sign(d)
	}
	switch a.typ {
	case Int:
		return sign(int(a.i) - int(b.i))
	case Float:
		// NaN compares false against everything, including itself, which
		// would otherwise make Compare intransitive (NaN looks equal to
		// both 1.0 and 2.0, but 1.0 < 2.0) and break any caller relying on
		// Compare for a stable sort or merge. Order it above every other
		// float so Compare stays a total order.
		aNaN, bNaN := math.IsNaN(a.f), math.IsNaN(b.f)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		default:
			return 0
		}
	case Bool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case String:
		return strings.Compare(a.s, b.s)
	case Schema:
		return compareSchema(a.schema, b.schema)
	case List:
		n := len(a.list)
		if len(b.list) < n {
			n = len(b.list)
		}
		for i := 0; i < n; i++ {
			if d := Compare(a.list[i], b.list[i]); d != 0 {
				return d
			}
		}
		return sign(len(a.list) - len(b.list))
	case Pair:
		if d := Compare(a.car, b.car); d != 0 {
			return d
		}
		return Compare(a.cdr, b.cdr)
	default:
		return 0
	}
}

// Equal reports whether Compare(a, b) == 0.
func Equal(a, b *Value) bool { return Compare(a, b) == 0 }

// Less adapts Compare for use as a sort.Interface comparator over a slice
// of Values, e.g. when diagnosing list-element ordering.
func Less(values []*Value) sort.Interface {
	return valueSlice(values)
}

type valueSlice []*Value

func (s valueSlice) Len() int           { return len(s) }
func (s valueSlice) Less(i, j int) bool { return Compare(s[i], s[j]) < 0 }
func (s valueSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// String renders a human-readable (non-canonical) representation, for log
// lines and CLI output.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.typ {
	case Int:
		return strconv.Itoa(int(v.i))
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case String:
		return v.s
	case Schema:
		return fmt.Sprintf("schema(%s)", v.schema.ValueType.TypeName())
	case List:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case Pair:
		return fmt.Sprintf("(%s,%s)", v.car.String(), v.cdr.String())
	default:
		return "<invalid>"
	}
}

// Debug returns a verbose dump intended for test failure output.
func (v *Value) Debug() string {
	return fmt.Sprintf("%s<%s>", v.typ.TypeName(), v.String())
}
