// Package catalog describes the collections the dashboard manages: which
// fields each record has, which are required, and where file fields are
// uploaded.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
)

// Kind is the input type of a field.
type Kind string

const (
	Text     Kind = "text"
	LongText Kind = "longtext"
	Number   Kind = "number"
	Date     Kind = "date"
	Select   Kind = "select"
	File     Kind = "file"
)

// Field describes one record field.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	// Folder and Accept apply to file fields only.
	Folder string `json:"folder,omitempty"`
	Accept string `json:"accept,omitempty"`
}

// Schema is the field layout of a collection.
type Schema struct {
	Collection string  `json:"collection"`
	Title      string  `json:"title"`
	Fields     []Field `json:"fields"`
	// Chapters enables the course chapter list.
	Chapters bool `json:"chapters,omitempty"`
	// Timestamped gives every blob of this collection a unique name.
	Timestamped bool `json:"timestamped,omitempty"`
	// StampAuthor records the creating user's id as "userId".
	StampAuthor bool `json:"-"`
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FileFields returns the file fields in declaration order.
func (s *Schema) FileFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Kind == File {
			out = append(out, f)
		}
	}
	return out
}

// IsFile reports whether name is a file field.
func (s *Schema) IsFile(name string) bool {
	f, ok := s.Field(name)
	return ok && f.Kind == File
}

// Normalize coerces a scalar value to the field's storage form: numeric
// strings become numbers and dates become RFC 3339 UTC timestamps with
// millisecond precision. Unknown fields pass through unchanged.
func (s *Schema) Normalize(name string, value any) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return value, nil
	}

	switch f.Kind {
	case Number:
		if str, ok := value.(string); ok {
			str = strings.TrimSpace(str)
			if n, err := strconv.ParseFloat(str, 64); err == nil {
				return n, nil
			}
		}
		return value, nil
	case Date:
		str, ok := value.(string)
		if !ok || strings.TrimSpace(str) == "" {
			return value, nil
		}
		t, err := ParseDate(str)
		if err != nil {
			return nil, &common.ValidationError{Field: name, Reason: "invalid date"}
		}
		return t.UTC().Format(ISODate), nil
	default:
		return value, nil
	}
}

// ISODate is the stored date layout.
const ISODate = "2006-01-02T15:04:05.000Z07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseDate accepts RFC 3339 timestamps, HTML datetime-local values and
// plain dates; values without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// IsEmpty reports whether a value counts as missing for a required field.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// Registry holds the known schemas by collection name.
type Registry struct {
	schemas map[string]*Schema
}

func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Collection] = s
	}
	return r
}

// Default returns the registry of courses, products and news.
func Default() *Registry {
	return NewRegistry(Courses(), Products(), News())
}

// Get returns common.ErrUnknownCollection for unregistered names.
func (r *Registry) Get(collection string) (*Schema, error) {
	s, ok := r.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownCollection, collection)
	}
	return s, nil
}

// All returns every schema sorted by collection name.
func (r *Registry) All() []*Schema {
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}
