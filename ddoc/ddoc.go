// Package ddoc models design documents, the server-side containers that
// group related view definitions, and validates them before publishing.
package ddoc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ViewDef holds the map source and optional reduce source of one view.
type ViewDef struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

// DesignDoc is a design document: a named group of view definitions plus
// optional spatial (geometry) index functions.
type DesignDoc struct {
	ID       string             `json:"_id,omitempty"`
	Rev      string             `json:"_rev,omitempty"`
	Language string             `json:"language,omitempty"`
	Views    map[string]ViewDef `json:"views,omitempty"`
	Spatial  map[string]string  `json:"spatial,omitempty"`
}

const schemaSource = `{
	"type": "object",
	"properties": {
		"_id": {"type": "string", "pattern": "^_design/.+"},
		"_rev": {"type": "string"},
		"language": {"type": "string"},
		"views": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"properties": {
					"map": {"type": "string", "minLength": 1},
					"reduce": {"type": "string"}
				},
				"required": ["map"]
			}
		},
		"spatial": {
			"type": "object",
			"additionalProperties": {"type": "string", "minLength": 1}
		}
	},
	"anyOf": [
		{"required": ["views"]},
		{"required": ["spatial"]}
	]
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiled() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaSource))
	})
	return schema, schemaErr
}

// Validate checks the design document against the publishing schema and
// reports every violation at once.
func (d *DesignDoc) Validate() error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile design doc schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(d))
	if err != nil {
		return fmt.Errorf("validate design doc: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid design doc: %s", strings.Join(msgs, "; "))
}

// New builds a design document with the given name ("blog" becomes
// "_design/blog") and view set.
func New(name string, views map[string]ViewDef) *DesignDoc {
	return &DesignDoc{
		ID:       "_design/" + name,
		Language: "javascript",
		Views:    views,
	}
}
