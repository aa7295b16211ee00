package forms

import "encoding/json"

// FieldSchema describes one renderable field of a form
type FieldSchema struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Definition is a form as configured in the record-keeping system. It is
// fetched fresh per submission and treated as immutable for the duration of
// one request.
type Definition struct {
	FormID       string          `json:"formId"`
	Title        string          `json:"title,omitempty"`
	Fields       []FieldSchema   `json:"fields,omitempty"`
	MappingRules *MappingRules   `json:"mappings,omitempty"`
	AgentConfig  json.RawMessage `json:"agentConfig,omitempty"`
	Active       bool            `json:"active"`
}
