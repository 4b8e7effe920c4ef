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

// Package schema implements the Schema descriptor record of §4.2: normative
// metadata describing another key's expected type, provenance and default.
package schema

import "github.com/hyperair/confd/internal/value"

// Schema is a plain data record. It carries no behavior beyond accessors,
// Copy, and the locale index built up by Family.
type Schema struct {
	ValueType       value.Type
	ListElementType value.Type
	CarType         value.Type
	CdrType         value.Type
	Locale          string
	Owner           string
	ShortDesc       string
	LongDesc        string
	Default         *value.Value
}

// New returns a Schema of the given value type with every other field
// zero-valued.
func New(vt value.Type) *Schema {
	return &Schema{ValueType: vt}
}

// Copy returns a deep copy.
func (s *Schema) Copy() *Schema {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Default != nil {
		cp.Default = s.Default.Copy()
	}
	return &cp
}

// ToDescriptor adapts a Schema to the value.SchemaDescriptor embedded by a
// Schema-typed Value, since internal/value cannot import internal/schema
// without a cycle.
func (s *Schema) ToDescriptor() *value.SchemaDescriptor {
	if s == nil {
		return nil
	}
	return &value.SchemaDescriptor{
		ValueType:       s.ValueType,
		ListElementType: s.ListElementType,
		CarType:         s.CarType,
		CdrType:         s.CdrType,
		Locale:          s.Locale,
		Owner:           s.Owner,
		ShortDesc:       s.ShortDesc,
		LongDesc:        s.LongDesc,
		Default:         s.Default,
	}
}

// FromDescriptor is the inverse of ToDescriptor.
func FromDescriptor(d *value.SchemaDescriptor) *Schema {
	if d == nil {
		return nil
	}
	return &Schema{
		ValueType:       d.ValueType,
		ListElementType: d.ListElementType,
		CarType:         d.CarType,
		CdrType:         d.CdrType,
		Locale:          d.Locale,
		Owner:           d.Owner,
		ShortDesc:       d.ShortDesc,
		LongDesc:        d.LongDesc,
		Default:         d.Default,
	}
}

// Family groups the per-locale Schema records associated with a single
// schema key, mirroring the original implementation's convention of
// storing one schema node per locale under a `%locale%<tag>`
// pseudo-subdirectory of the schema's parent (see internal/backend).
type Family struct {
	// ByLocale maps a locale tag ("" for the default/C locale) to the
	// Schema installed for it.
	ByLocale map[string]*Schema
}

// NewFamily returns an empty Family.
func NewFamily() *Family {
	return &Family{ByLocale: make(map[string]*Schema)}
}

// Locales enumerates the installed locale tags, "" (default) first.
func (f *Family) Locales() []string {
	if f == nil {
		return nil
	}
	locales := make([]string, 0, len(f.ByLocale))
	if _, ok := f.ByLocale[""]; ok {
		locales = append(locales, "")
	}
	for l := range f.ByLocale {
		if l != "" {
			locales = append(locales, l)
		}
	}
	return locales
}

// Best returns the best-matching Schema for a preference-ordered list of
// locales, falling back to the default ("") record, matching the backend
// interface's query_value locale-preference contract (§4.4).
func (f *Family) Best(locales []string) *Schema {
	if f == nil {
		return nil
	}
	for _, l := range locales {
		if l == "" || l == "C" {
			if s, ok := f.ByLocale[""]; ok {
				return s
			}
			continue
		}
		if s, ok := f.ByLocale[l]; ok {
			return s
		}
	}
	if s, ok := f.ByLocale[""]; ok {
		return s
	}
	for _, s := range f.ByLocale {
		return s
	}
	return nil
}

// Set installs or replaces the Schema for a locale ("" for default).
func (f *Family) Set(locale string, s *Schema) {
	if f.ByLocale == nil {
		f.ByLocale = make(map[string]*Schema)
	}
	f.ByLocale[locale] = s
}
