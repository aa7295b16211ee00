package forms

import (
	"strings"
	"time"
)

// TransformType identifies a field derivation transform
type TransformType string

const (
	TransformSplitName   TransformType = "splitName"
	TransformFormatPhone TransformType = "formatPhone"
	TransformFormatDate  TransformType = "formatDate"
	TransformConcat      TransformType = "concat"
)

// Phone output formats
const (
	PhoneFormatUS       = "US"
	PhoneFormatE164     = "E164"
	PhoneFormatNational = "NATIONAL"
)

// TransformSpec configures one transform. Source names the input field
// (Sources for concat); Target/Targets name the derived output fields.
type TransformSpec struct {
	Type      TransformType     `json:"type"`
	Source    string            `json:"source,omitempty"`
	Sources   []string          `json:"sources,omitempty"`
	Target    string            `json:"target,omitempty"`
	Targets   map[string]string `json:"targets,omitempty"`
	Format    string            `json:"format,omitempty"`
	Separator string            `json:"separator,omitempty"`
}

// ApplyTransform derives new fields from raw form data. It returns the
// partial field map to merge, or nil when the transform produces nothing.
// Transforms never fail; unusable input simply yields no output.
func ApplyTransform(data map[string]any, spec TransformSpec) map[string]any {
	switch spec.Type {
	case TransformSplitName:
		first, last := spec.Targets["firstName"], spec.Targets["lastName"]
		if first == "" {
			first = "firstName"
		}
		if last == "" {
			last = "lastName"
		}
		return SplitName(stringValue(data[spec.Source]), first, last)
	case TransformFormatPhone:
		formatted := FormatPhone(stringValue(data[spec.Source]), spec.Format)
		if formatted == "" {
			return nil
		}
		return map[string]any{targetOr(spec, spec.Source): formatted}
	case TransformFormatDate:
		formatted := FormatDate(stringValue(data[spec.Source]), spec.Format)
		if formatted == "" {
			return nil
		}
		return map[string]any{targetOr(spec, spec.Source): formatted}
	case TransformConcat:
		joined := Concat(data, spec.Sources, spec.Separator)
		if joined == "" || spec.Target == "" {
			return nil
		}
		return map[string]any{spec.Target: joined}
	default:
		return nil
	}
}

// SplitName splits a full name on whitespace. A single token becomes the
// last name only; with multiple tokens everything but the final token joins
// into the first name.
func SplitName(full, firstKey, lastKey string) map[string]any {
	tokens := strings.Fields(strings.TrimSpace(full))
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		return map[string]any{lastKey: tokens[0]}
	default:
		return map[string]any{
			firstKey: strings.Join(tokens[:len(tokens)-1], " "),
			lastKey:  tokens[len(tokens)-1],
		}
	}
}

// FormatPhone strips non-digits and formats 10-digit numbers. Any other
// length passes through digits-only, unformatted.
func FormatPhone(raw, format string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 10 {
		return d
	}
	switch format {
	case PhoneFormatE164:
		return "+1" + d
	case PhoneFormatUS, PhoneFormatNational, "":
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	default:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
}

// dateLayouts are tried in order when parsing incoming date strings
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
}

// FormatDate normalizes a date string. Unparseable input yields "" so the
// field is omitted rather than erroring.
func FormatDate(raw, outputFormat string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var parsed time.Time
	var ok bool
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			parsed, ok = t, true
			break
		}
	}
	if !ok {
		return ""
	}
	switch outputFormat {
	case "", "ISO8601":
		return parsed.Format("2006-01-02")
	default:
		return parsed.Format(outputFormat)
	}
}

// Concat joins the non-empty source values with the separator (default a
// single space). Missing sources contribute nothing.
func Concat(data map[string]any, sources []string, separator string) string {
	if separator == "" {
		separator = " "
	}
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		if v := strings.TrimSpace(stringValue(data[src])); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, separator)
}

func targetOr(spec TransformSpec, fallback string) string {
	if spec.Target != "" {
		return spec.Target
	}
	return fallback
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}
