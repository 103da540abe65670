// Package match selects the catalog cases a filter context applies to.
package match

import (
	"sort"

	"caseflow/internal/catalog"
	"caseflow/internal/filterctx"
)

// Cases returns the cases matched by the given criteria, sorted by id.
// Empty criteria match everything.
//
// A case that does not carry a filtered attribute at all is unaffected
// by that criterion and still matches. A case that carries the
// attribute with an unset marker value only matches criteria that ask
// for the unset marker; any other comparison is exact and
// case-sensitive.
func Cases(criteria filterctx.Criteria, records []*catalog.Case) []*catalog.Case {
	matched := make([]*catalog.Case, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		if Matches(criteria, record) {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

// Matches reports whether a single case satisfies every criterion.
func Matches(criteria filterctx.Criteria, record *catalog.Case) bool {
	for key, want := range criteria {
		value, present := record.Attributes[key]
		if !present {
			continue
		}
		wantNorm := filterctx.NormalizeValue(want)
		if wantNorm == "" {
			if !filterctx.IsUnsetMarker(value) {
				return false
			}
			continue
		}
		if filterctx.IsUnsetMarker(value) || value != wantNorm {
			return false
		}
	}
	return true
}

// IDs returns the ids of the matched cases, in match order.
func IDs(matched []*catalog.Case) []string {
	ids := make([]string, 0, len(matched))
	for _, record := range matched {
		ids = append(ids, record.ID)
	}
	return ids
}
