package forms

import "sort"

// Evaluation is the outcome of applying mapping rules to one submission.
// Unmapped lists source fields with no static mapping entry; it is
// diagnostic only, never an error.
type Evaluation struct {
	Record   map[string]any
	Unmapped []string
}

// Evaluate produces the target record for one submission. In order: apply
// all transformations to an augmented copy of the form data, apply static
// field mappings, apply conditional mappings, then the legacy single-name
// split fallback.
func Evaluate(formData map[string]any, rules *MappingRules) Evaluation {
	eval := Evaluation{Record: make(map[string]any)}
	if rules == nil {
		return eval
	}

	augmented := applyTransformations(formData, rules)

	// Static field mappings. Keys are walked in sorted order so the
	// unmapped diagnostic is deterministic.
	keys := make([]string, 0, len(augmented))
	for k := range augmented {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		target, ok := rules.FieldMappings[key]
		if !ok {
			eval.Unmapped = append(eval.Unmapped, key)
			continue
		}
		eval.Record[target] = augmented[key]
	}

	// Conditional mappings, evaluated per target field
	targets := make([]string, 0, len(rules.ConditionalMappings))
	for t := range rules.ConditionalMappings {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, target := range targets {
		applyConditionalRule(eval.Record, augmented, target, rules.ConditionalMappings[target])
	}

	applyNameFallback(eval.Record, augmented, rules)

	return eval
}

// applyTransformations returns a copy of the form data with all configured
// transform outputs merged in. Original keys are retained; derived keys are
// added or overwritten.
func applyTransformations(formData map[string]any, rules *MappingRules) map[string]any {
	augmented := make(map[string]any, len(formData))
	for k, v := range formData {
		augmented[k] = v
	}
	specKeys := make([]string, 0, len(rules.Transformations))
	for k := range rules.Transformations {
		specKeys = append(specKeys, k)
	}
	sort.Strings(specKeys)
	for _, key := range specKeys {
		for k, v := range ApplyTransform(augmented, rules.Transformations[key]) {
			augmented[k] = v
		}
	}
	return augmented
}

func applyConditionalRule(record, data map[string]any, target string, rule ConditionalRule) {
	if rule.IsConditionsList() {
		for _, entry := range rule.Conditions {
			satisfied, err := entry.If.Evaluate(data)
			if err != nil || !satisfied {
				continue
			}
			// First satisfied entry wins
			if entry.Then.MapFrom != "" {
				if v, ok := data[entry.Then.MapFrom]; ok {
					record[target] = v
				}
			} else if entry.Then.Value != nil {
				record[target] = entry.Then.Value
			}
			return
		}
		return
	}

	if len(rule.When) == 0 {
		return
	}
	matched := true
	for field, expected := range rule.When {
		actual, ok := data[field]
		if !ok || !equalValues(actual, expected) {
			matched = false
			break
		}
	}

	var source *MappingTarget
	if matched {
		source = rule.Then
	} else {
		source = rule.Else
	}
	if source == nil || source.MapFrom == "" {
		return
	}
	// Only a present source value overwrites; otherwise whatever the static
	// mapping produced stands.
	if v, ok := data[source.MapFrom]; ok && v != nil {
		record[target] = v
	}
}

// applyNameFallback splits a whole name mapped to lastName into first/last
// parts when the form predates explicit name mapping. It never fires when a
// splitName transform is configured, so the two paths cannot both apply.
func applyNameFallback(record, data map[string]any, rules *MappingRules) {
	if rules.HasTransformType(TransformSplitName) {
		return
	}
	if target, ok := rules.FieldMappings["name"]; !ok || target != "lastName" {
		return
	}
	if hasMappingTarget(rules, "firstName") {
		return
	}
	parts := SplitName(stringValue(data["name"]), "firstName", "lastName")
	for k, v := range parts {
		record[k] = v
	}
}

func hasMappingTarget(rules *MappingRules, target string) bool {
	for _, t := range rules.FieldMappings {
		if t == target {
			return true
		}
	}
	_, ok := rules.ConditionalMappings[target]
	return ok
}
