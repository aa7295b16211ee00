package crm

import "context"

// Record is a generic record returned by the record-keeping system
type Record map[string]any

// ID extracts the record identifier, tolerating both "Id" and "id" keys
func (r Record) ID() string {
	for _, key := range []string{"Id", "id", "ID"} {
		if v, ok := r[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// StringField returns the named field as a string, or "" if absent
func (r Record) StringField(name string) string {
	if v, ok := r[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Field describes one field of an object type
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// CreateResult is the outcome of a create call
type CreateResult struct {
	Success bool          `json:"success"`
	ID      string        `json:"id"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one error entry in a create response
type ErrorDetail struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// Client is the port interface for the external record-keeping system.
// Any client satisfying this capability set is substitutable; the concrete
// REST implementation lives in the infrastructure layer.
type Client interface {
	// Describe returns the field metadata for an object type
	Describe(ctx context.Context, objectType string) ([]Field, error)

	// Query runs a query and returns the matching records
	Query(ctx context.Context, query string) ([]Record, error)

	// Create creates a record of the given object type
	Create(ctx context.Context, objectType string, fields map[string]any) (*CreateResult, error)
}
