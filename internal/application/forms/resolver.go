package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/domain/crm"
	"github.com/formbridge/backend/internal/domain/forms"
	"github.com/formbridge/backend/internal/domain/shared"
	infracrm "github.com/formbridge/backend/internal/infrastructure/crm"
)

// Form object field names in the record-keeping system
const (
	FieldFormID       = "FormId__c"
	FieldTitle        = "Title__c"
	FieldFieldsSchema = "FieldsSchema__c"
	FieldMappingRules = "MappingRules__c"
	FieldAgentConfig  = "AgentConfig__c"
	FieldActive       = "Active__c"
)

// Resolution is a fetched form definition plus any payload parse failures.
// The three JSON payloads are independently fallible: a bad one is reported
// by name without discarding the others.
type Resolution struct {
	Definition  *forms.Definition
	ParseErrors map[string]string
}

// MappingRulesBroken reports whether the mapping rules payload failed to
// parse. Submissions treat this as a configuration error; a broken schema or
// agent config does not block them.
func (r *Resolution) MappingRulesBroken() bool {
	_, broken := r.ParseErrors[FieldMappingRules]
	return broken
}

// ConfigurationError builds the caller-facing error naming every broken
// payload, or nil when all parsed
func (r *Resolution) ConfigurationError() error {
	if len(r.ParseErrors) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.ParseErrors))
	for field := range r.ParseErrors {
		names = append(names, field)
	}
	return shared.NewConfigurationError(
		fmt.Sprintf("form configuration is unparseable in: %s", strings.Join(names, ", ")))
}

// Resolver fetches form definitions from the record-keeping system. Nothing
// is cached: each submission re-resolves its form fresh and treats the
// result as immutable for the request.
type Resolver struct {
	formObject string
	logger     *zap.Logger
}

// NewResolver creates a form resolver reading from the given form object type
func NewResolver(formObject string, logger *zap.Logger) *Resolver {
	return &Resolver{formObject: formObject, logger: logger}
}

// Fetch looks the form up by its identifier and decodes its payloads
func (r *Resolver) Fetch(ctx context.Context, formID string, client crm.Client) (*Resolution, error) {
	query := fmt.Sprintf(
		"SELECT Id, %s, %s, %s, %s, %s, %s FROM %s WHERE %s = '%s' LIMIT 1",
		FieldFormID, FieldTitle, FieldFieldsSchema, FieldMappingRules, FieldAgentConfig, FieldActive,
		r.formObject, FieldFormID, infracrm.QuoteLiteral(formID),
	)
	records, err := client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, shared.NewNotFoundError(fmt.Sprintf("form %q not found", formID))
	}

	record := records[0]
	res := &Resolution{
		Definition: &forms.Definition{
			FormID: formID,
			Title:  record.StringField(FieldTitle),
			Active: boolField(record, FieldActive),
		},
		ParseErrors: make(map[string]string),
	}

	if raw := record.StringField(FieldFieldsSchema); raw != "" {
		var fields []forms.FieldSchema
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			r.notePayloadError(res, formID, FieldFieldsSchema, err)
		} else {
			res.Definition.Fields = fields
		}
	}
	if raw := record.StringField(FieldMappingRules); raw != "" {
		var rules forms.MappingRules
		if err := json.Unmarshal([]byte(raw), &rules); err != nil {
			r.notePayloadError(res, formID, FieldMappingRules, err)
		} else {
			res.Definition.MappingRules = &rules
		}
	}
	if raw := record.StringField(FieldAgentConfig); raw != "" {
		if !json.Valid([]byte(raw)) {
			r.notePayloadError(res, formID, FieldAgentConfig,
				fmt.Errorf("invalid JSON"))
		} else {
			res.Definition.AgentConfig = json.RawMessage(raw)
		}
	}

	return res, nil
}

func (r *Resolver) notePayloadError(res *Resolution, formID, field string, err error) {
	res.ParseErrors[field] = err.Error()
	if r.logger != nil {
		r.logger.Warn("form payload unparseable",
			zap.String("form_id", formID),
			zap.String("field", field),
			zap.Error(err),
		)
	}
}

func boolField(record crm.Record, name string) bool {
	switch v := record[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
