package criteria

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleDocument is the stored and authored form of a rule.
type RuleDocument struct {
	Field       Field    `json:"field" yaml:"field" toml:"field"`
	Operator    Operator `json:"operator" yaml:"operator" toml:"operator"`
	TextValue   *string  `json:"textValue,omitempty" yaml:"textValue,omitempty" toml:"textValue,omitempty"`
	NumberValue *float64 `json:"numberValue,omitempty" yaml:"numberValue,omitempty" toml:"numberValue,omitempty"`
	DaysValue   *int     `json:"daysValue,omitempty" yaml:"daysValue,omitempty" toml:"daysValue,omitempty"`
}

// Document is the stored and authored form of a criteria set.
type Document struct {
	Rules          []RuleDocument `json:"rules" yaml:"rules" toml:"rules"`
	Logic          Logic          `json:"logic,omitempty" yaml:"logic,omitempty" toml:"logic,omitempty"`
	OrderBy        Field          `json:"orderBy,omitempty" yaml:"orderBy,omitempty" toml:"orderBy,omitempty"`
	OrderDirection Direction      `json:"orderDirection,omitempty" yaml:"orderDirection,omitempty" toml:"orderDirection,omitempty"`
	Limit          *int           `json:"limit,omitempty" yaml:"limit,omitempty" toml:"limit,omitempty"`
}

// ParseJSON decodes a criteria document stored as JSON.
func ParseJSON(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode criteria json: %w", err)
	}
	return doc, nil
}

// ParseYAML decodes a criteria document written as YAML.
func ParseYAML(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode criteria yaml: %w", err)
	}
	return doc, nil
}

// LoadFile reads a criteria document from a .json, .yaml or .yml file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read criteria file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Document{}, fmt.Errorf("unsupported criteria file extension %q", filepath.Ext(path))
	}
}

// JSON encodes the document for storage.
func (d Document) JSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode criteria: %w", err)
	}
	return string(data), nil
}

// Text returns a rule document with a text value.
func Text(f Field, op Operator, v string) RuleDocument {
	return RuleDocument{Field: f, Operator: op, TextValue: &v}
}

// Number returns a rule document with a numeric value.
func Number(f Field, op Operator, v float64) RuleDocument {
	return RuleDocument{Field: f, Operator: op, NumberValue: &v}
}

// Days returns a rule document with a day count.
func Days(f Field, op Operator, v int) RuleDocument {
	return RuleDocument{Field: f, Operator: op, DaysValue: &v}
}

// Bare returns a rule document without a value.
func Bare(f Field, op Operator) RuleDocument {
	return RuleDocument{Field: f, Operator: op}
}

// Document converts validated criteria back to their stored form.
func (c Criteria) Document() Document {
	doc := Document{
		Rules:          make([]RuleDocument, 0, len(c.Rules)),
		Logic:          c.Logic,
		OrderBy:        c.OrderBy,
		OrderDirection: c.OrderDirection,
	}
	if c.Limit > 0 {
		limit := c.Limit
		doc.Limit = &limit
	}

	for _, r := range c.Rules {
		switch r := r.(type) {
		case TextRule:
			doc.Rules = append(doc.Rules, Text(r.Field, r.Op, r.Value))
		case NumericRule:
			doc.Rules = append(doc.Rules, Number(r.Field, r.Op, r.Value))
		case RelativeDateRule:
			doc.Rules = append(doc.Rules, Days(r.Field, r.Op, r.Days))
		case TagRule:
			if r.TagID == "" {
				doc.Rules = append(doc.Rules, Bare(FieldTag, r.Op))
			} else {
				doc.Rules = append(doc.Rules, Text(FieldTag, r.Op, r.TagID))
			}
		case ExistenceRule:
			doc.Rules = append(doc.Rules, Bare(r.Field, r.Op))
		}
	}
	return doc
}
