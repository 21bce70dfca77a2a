package ai

import (
	"encoding/json"
	"slices"
)

// JSONSchema implements json.Marshaler for OpenAI's JSON Schema format.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Description          string                 `json:"description,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	return json.Marshal((*alias)(s))
}

// Object builds a strict object schema requiring every property.
func Object(props map[string]*JSONSchema) *JSONSchema {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	slices.Sort(required)
	closed := false
	return &JSONSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: &closed,
	}
}

// String builds a string schema.
func String(description string, enum ...string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description, Enum: enum}
}

// Number builds a number schema.
func Number(description string) *JSONSchema {
	return &JSONSchema{Type: "number", Description: description}
}

// ArrayOf builds an array schema.
func ArrayOf(items *JSONSchema, description string) *JSONSchema {
	return &JSONSchema{Type: "array", Items: items, Description: description}
}
