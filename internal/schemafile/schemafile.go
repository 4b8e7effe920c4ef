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

// Package schemafile parses the XML schema installation file format of
// §6: a <gconfschemafile> wrapping a <schemalist> of one or more <schema>
// elements, each carrying per-locale default/short/long text. No XML
// library appears anywhere in the retrieval pack, so this is implemented
// directly against the standard library's encoding/xml, the idiomatic
// choice for this in the wider Go ecosystem (see DESIGN.md).
package schemafile

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/schema"
	"github.com/hyperair/confd/internal/value"
)

type xmlFile struct {
	XMLName xml.Name   `xml:"gconfschemafile"`
	List    xmlList    `xml:"schemalist"`
}

type xmlList struct {
	Schemas []xmlSchema `xml:"schema"`
}

type xmlSchema struct {
	Key        string      `xml:"key"`
	Owner      string      `xml:"owner"`
	Type       string      `xml:"type"`
	ListType   string      `xml:"list_type"`
	CarType    string      `xml:"car_type"`
	CdrType    string      `xml:"cdr_type"`
	Default    string      `xml:"default"`
	ApplyTo    []string    `xml:"applyto"`
	Locales    []xmlLocale `xml:"locale"`
}

type xmlLocale struct {
	Name    string `xml:"name,attr"`
	Default string `xml:"default"`
	Short   string `xml:"short"`
	Long    string `xml:"long"`
}

// Entry is one parsed <schema> element: its own key, the keys it should
// be associated with, and the schema Family built from its locale blocks.
type Entry struct {
	Key     string
	ApplyTo []string
	Family  *schema.Family
}

// Parse reads a schema installation file from r.
func Parse(r io.Reader) ([]Entry, error) {
	var doc xmlFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, cerr.Wrap(cerr.ParseError, err, "parsing schema installation file")
	}
	entries := make([]Entry, 0, len(doc.List.Schemas))
	for _, s := range doc.List.Schemas {
		e, err := convert(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseFile is a convenience wrapper around Parse for a path on disk.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerr.Wrap(cerr.Failed, err, "opening schema installation file %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// typeFromNameOrInvalid treats an unset or unrecognized type name as
// value.Invalid rather than a parse error, since most schema fields
// (list_type, car_type, cdr_type) are only present for their matching
// container type.
func typeFromNameOrInvalid(name string) value.Type {
	vt, err := value.TypeFromName(name)
	if err != nil {
		return value.Invalid
	}
	return vt
}

func convert(s xmlSchema) (Entry, error) {
	if s.Key == "" {
		return Entry{}, cerr.New(cerr.ParseError, "schema element missing required <key>")
	}
	if len(s.Locales) == 0 {
		return Entry{}, cerr.New(cerr.ParseError, "schema %s must declare at least one <locale>", s.Key)
	}

	vt := typeFromNameOrInvalid(s.Type)
	family := schema.NewFamily()
	for _, loc := range s.Locales {
		sc := schema.New(vt)
		sc.Owner = s.Owner
		sc.ListElementType = typeFromNameOrInvalid(s.ListType)
		sc.CarType = typeFromNameOrInvalid(s.CarType)
		sc.CdrType = typeFromNameOrInvalid(s.CdrType)
		sc.Locale = loc.Name
		sc.ShortDesc = loc.Short
		sc.LongDesc = loc.Long

		def := loc.Default
		if def == "" {
			def = s.Default
		}
		if def != "" {
			v, err := parseLiteral(vt, def)
			if err != nil {
				return Entry{}, cerr.Wrap(cerr.ParseError, err, "parsing default for schema %s locale %q", s.Key, loc.Name)
			}
			sc.Default = v
		}
		family.Set(loc.Name, sc)
	}

	return Entry{Key: s.Key, ApplyTo: s.ApplyTo, Family: family}, nil
}

// parseLiteral interprets a schema file's plain-text default value
// literal as a Value of the declared type.
func parseLiteral(vt value.Type, literal string) (*value.Value, error) {
	switch vt {
	case value.String:
		return value.NewString(literal), nil
	case value.Int:
		var i int32
		if _, err := fmt.Sscan(literal, &i); err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "parsing int literal %q", literal)
		}
		return value.NewInt(i), nil
	case value.Float:
		var f float64
		if _, err := fmt.Sscan(literal, &f); err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "parsing float literal %q", literal)
		}
		return value.NewFloat(f), nil
	case value.Bool:
		return value.NewBool(literal == "true" || literal == "1"), nil
	default:
		return value.NewString(literal), nil
	}
}
