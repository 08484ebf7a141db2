package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

// TagSet is the result of splitting canonical attributes for the asset
// manager: Direct entries are set natively (keyed by uppercased label),
// everything else is concatenated into Description.
type TagSet struct {
	Direct      map[string]string
	Description string
}

// Attributes flattens the set into attribute-name → value, with the
// aggregated text under descriptionAttr. This is the exact shape handed to
// the asset manager and embedded in approval payloads.
func (t TagSet) Attributes(descriptionAttr string) map[string]string {
	attrs := make(map[string]string, len(t.Direct)+1)
	for label, value := range t.Direct {
		attrs[label] = value
	}
	attrs[descriptionAttr] = t.Description
	return attrs
}

// Split partitions canonical attributes into direct and aggregated sets.
// The direct list is config-driven and evaluated on every call; deployments
// can change it without touching stored submissions.
func Split(canonical Canonical, directKeys []string) (TagSet, error) {
	direct := make(map[string]string, len(directKeys))
	directSet := make(map[string]bool, len(directKeys))

	for _, key := range directKeys {
		attr, ok := canonical[key]
		if !ok {
			return TagSet{}, apperr.Configuration("direct attribute %q is not part of the canonical attribute set", key)
		}
		direct[strings.ToUpper(attr.Label)] = FormatValue(attr.Value)
		directSet[key] = true
	}

	// Deterministic description ordering, keyed by canonical key.
	rest := make([]string, 0, len(canonical))
	for key := range canonical {
		if !directSet[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	lines := make([]string, 0, len(rest))
	for _, key := range rest {
		attr := canonical[key]
		lines = append(lines, fmt.Sprintf("%s: %s", attr.Label, FormatValue(attr.Value)))
	}

	return TagSet{Direct: direct, Description: strings.Join(lines, "\n")}, nil
}
