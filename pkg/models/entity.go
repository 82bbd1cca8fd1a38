package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldKind describes what a FieldValue holds
type FieldKind int

const (
	FieldAbsent FieldKind = iota
	FieldString
	FieldNumber
	// FieldUnsupported marks a value of a type the engine does not compare (bool, object, array)
	FieldUnsupported
)

// FieldValue is a tagged field value: a string, a number, or absent
type FieldValue struct {
	kind FieldKind
	str  string
	num  float64
	raw  string
}

// StringValue creates a string field value
func StringValue(s string) FieldValue {
	return FieldValue{kind: FieldString, str: s}
}

// NumberValue creates a numeric field value
func NumberValue(n float64) FieldValue {
	return FieldValue{kind: FieldNumber, num: n}
}

func (v FieldValue) Kind() FieldKind {
	return v.kind
}

// IsPresent reports whether the value holds a comparable string or number
func (v FieldValue) IsPresent() bool {
	return v.kind == FieldString || v.kind == FieldNumber
}

// String renders the value as text. Numbers use the shortest exact representation.
func (v FieldValue) String() string {
	switch v.kind {
	case FieldString:
		return v.str
	case FieldNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the numeric interpretation of the value
func (v FieldValue) Float() (float64, bool) {
	switch v.kind {
	case FieldNumber:
		return v.num, true
	case FieldString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Interface returns the value as a plain Go value for JSON-shaped outputs
func (v FieldValue) Interface() any {
	switch v.kind {
	case FieldString:
		return v.str
	case FieldNumber:
		return v.num
	default:
		return nil
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON never fails on value type: unsupported types are kept so the
// resolver can skip the record with a warning instead of failing the batch.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = FieldValue{}
	case string:
		*v = StringValue(t)
	case float64:
		*v = NumberValue(t)
	default:
		*v = FieldValue{kind: FieldUnsupported, raw: fmt.Sprintf("%T", t)}
	}
	return nil
}

// EntityRecord is one input record. The engine never mutates it.
type EntityRecord struct {
	ID         string                `json:"id"`
	Type       string                `json:"type,omitempty"`
	Source     string                `json:"source,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	UpdatedAt  *time.Time            `json:"updated_at,omitempty"`
	Fields     map[string]FieldValue `json:"fields"`
	Attributes map[string]any        `json:"attributes,omitempty"`
}

// Field returns the named field when it holds a comparable value
func (e EntityRecord) Field(name string) (FieldValue, bool) {
	v, ok := e.Fields[name]
	if !ok || !v.IsPresent() {
		return FieldValue{}, false
	}
	return v, true
}

// FieldString returns the named field as text, or "" when absent
func (e EntityRecord) FieldString(name string) string {
	v, _ := e.Field(name)
	return v.String()
}

// Validate checks the record can take part in resolution
func (e EntityRecord) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("entity id is empty")
	}
	for name, v := range e.Fields {
		if v.kind == FieldUnsupported {
			return fmt.Errorf("field %q has unsupported value type %s", name, v.raw)
		}
	}
	return nil
}

// IndexEntities maps entities by id. Later duplicates do not replace earlier ones.
func IndexEntities(entities []EntityRecord) map[string]EntityRecord {
	index := make(map[string]EntityRecord, len(entities))
	for _, e := range entities {
		if _, exists := index[e.ID]; !exists {
			index[e.ID] = e
		}
	}
	return index
}
