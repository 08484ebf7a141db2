// Package normalize converts raw survey submission records into a canonical
// attribute mapping and splits canonical attributes into natively-settable
// and aggregated sets for the asset manager.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

// OtherSuffix marks choice fields carrying a free-text override. When the
// override is empty the value of the suffix-stripped field is used instead.
const OtherSuffix = "_other"

// compoundSeparator joins subkeys in a compound label spec like "x~y".
const compoundSeparator = "~"

// Attribute is one canonical (label, value) entry.
type Attribute struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Canonical maps a field or subfield key to its normalized attribute.
type Canonical map[string]Attribute

type ruleKind int

const (
	ruleCopy ruleKind = iota
	ruleOtherFallback
	ruleCompound
)

type rule struct {
	field         string
	label         string
	kind          ruleKind
	subKeys       []string // compound only
	fallbackField string   // other-fallback only
}

// Schema is the compiled form of the configured field→label mapping. The
// string conventions ("x~y" compound labels, the "_other" suffix) are
// resolved once at compile time so Normalize is a plain rule interpreter.
type Schema struct {
	rules []rule
}

// NewSchema compiles the configured attribute mapping into a Schema.
// Rules are ordered by field name so Normalize is deterministic.
func NewSchema(attributes map[string]string) *Schema {
	fields := make([]string, 0, len(attributes))
	for field := range attributes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	rules := make([]rule, 0, len(fields))
	for _, field := range fields {
		label := attributes[field]
		switch {
		case strings.Contains(label, compoundSeparator):
			rules = append(rules, rule{
				field:   field,
				label:   label,
				kind:    ruleCompound,
				subKeys: strings.Split(label, compoundSeparator),
			})
		case strings.HasSuffix(field, OtherSuffix):
			rules = append(rules, rule{
				field:         field,
				label:         label,
				kind:          ruleOtherFallback,
				fallbackField: strings.TrimSuffix(field, OtherSuffix),
			})
		default:
			rules = append(rules, rule{field: field, label: label, kind: ruleCopy})
		}
	}
	return &Schema{rules: rules}
}

// Normalize derives the canonical attribute mapping from a raw submission
// record. A referenced field missing from the record means the configured
// schema and the survey disagree and is reported as a configuration error.
func (s *Schema) Normalize(raw map[string]any) (Canonical, error) {
	canonical := make(Canonical, len(s.rules))

	for _, r := range s.rules {
		value, ok := raw[r.field]
		if !ok {
			return nil, apperr.Configuration("field %q referenced by metadata attributes is absent from submission record", r.field)
		}

		switch r.kind {
		case ruleCompound:
			nested, ok := value.(map[string]any)
			if !ok {
				return nil, apperr.Configuration("field %q has compound spec %q but holds %T, not a nested mapping", r.field, r.label, value)
			}
			for _, subKey := range r.subKeys {
				subValue, ok := nested[subKey]
				if !ok {
					return nil, apperr.Configuration("subkey %q of field %q is absent from submission record", subKey, r.field)
				}
				canonical[subKey] = Attribute{Label: strings.ToUpper(subKey), Value: subValue}
			}

		case ruleOtherFallback:
			if isEmpty(value) {
				fallback, ok := raw[r.fallbackField]
				if !ok {
					return nil, apperr.Configuration("fallback field %q for %q is absent from submission record", r.fallbackField, r.field)
				}
				value = fallback
			}
			canonical[r.field] = Attribute{Label: r.label, Value: value}

		default:
			canonical[r.field] = Attribute{Label: r.label, Value: value}
		}
	}

	return canonical, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// FormatValue renders an attribute value the way it is written to outbound
// payloads and the aggregated description text.
func FormatValue(value any) string {
	return fmt.Sprint(value)
}
