package forms

// MappingRules is the declarative specification driving field mapping for a
// form: a static source-to-target map, conditional rules per target field,
// and derivation transforms applied before either.
type MappingRules struct {
	TargetObjectType    string                     `json:"targetObjectType,omitempty"`
	FieldMappings       map[string]string          `json:"fieldMappings,omitempty"`
	ConditionalMappings map[string]ConditionalRule `json:"conditionalMappings,omitempty"`
	Transformations     map[string]TransformSpec   `json:"transformations,omitempty"`
}

// HasTransformType reports whether any configured transformation has the
// given type
func (r *MappingRules) HasTransformType(t TransformType) bool {
	for _, spec := range r.Transformations {
		if spec.Type == t {
			return true
		}
	}
	return false
}

// MappingTarget names the value a satisfied rule assigns: either another
// data field (MapFrom) or a literal (Value)
type MappingTarget struct {
	MapFrom string `json:"mapFrom,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// ConditionalRule is one of two shapes. A when/then/else rule matches when
// every "when" entry equals the corresponding form value. A conditions-list
// rule evaluates its entries in order and the first satisfied entry wins.
type ConditionalRule struct {
	When       map[string]any    `json:"when,omitempty"`
	Then       *MappingTarget    `json:"then,omitempty"`
	Else       *MappingTarget    `json:"else,omitempty"`
	Conditions []ConditionalCase `json:"conditions,omitempty"`
}

// IsConditionsList reports whether the rule is the ordered-list shape
func (r ConditionalRule) IsConditionsList() bool {
	return len(r.Conditions) > 0
}

// ConditionalCase is one ordered entry of a conditions-list rule
type ConditionalCase struct {
	If   Condition     `json:"if"`
	Then MappingTarget `json:"then"`
}
