// Package filterctx canonicalizes case filter criteria and derives the
// stable fingerprint that scopes progress records and queue sessions.
package filterctx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidCriteria reports filter criteria that cannot be reduced to
// flat string pairs.
var ErrInvalidCriteria = errors.New("invalid filter criteria")

// Criteria is a flat set of attribute filters keyed by attribute name.
type Criteria map[string]string

// Fingerprint identifies a filter context. The zero value is the global
// context, which covers activity recorded outside any filter.
type Fingerprint struct {
	digest string
}

// Global returns the fingerprint of the unfiltered context.
func Global() Fingerprint {
	return Fingerprint{}
}

// IsGlobal reports whether f is the unfiltered context.
func (f Fingerprint) IsGlobal() bool {
	return f.digest == ""
}

// Key returns the storage form of the fingerprint. The global context
// maps to the empty string.
func (f Fingerprint) Key() string {
	return f.digest
}

// FromKey reconstructs a fingerprint from its storage form.
func FromKey(key string) Fingerprint {
	return Fingerprint{digest: strings.TrimSpace(key)}
}

// String implements fmt.Stringer for log output.
func (f Fingerprint) String() string {
	if f.IsGlobal() {
		return "global"
	}
	return f.digest
}

// unsetMarkers are the values treated as "attribute not set". They all
// normalize to the empty string before hashing and matching.
var unsetMarkers = map[string]struct{}{
	"":     {},
	"null": {},
	"None": {},
}

// IsUnsetMarker reports whether value represents an unset attribute.
func IsUnsetMarker(value string) bool {
	_, ok := unsetMarkers[value]
	return ok
}

// NormalizeValue maps unset markers to the empty string and leaves
// every other value untouched.
func NormalizeValue(value string) string {
	if IsUnsetMarker(value) {
		return ""
	}
	return value
}

// Compute derives the fingerprint of the given criteria. Criteria with
// no entries produce the global fingerprint; nothing is hashed for it.
func Compute(criteria Criteria) Fingerprint {
	if len(criteria) == 0 {
		return Global()
	}

	keys := make([]string, 0, len(criteria))
	for key := range criteria {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+":"+NormalizeValue(criteria[key]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return Fingerprint{digest: hex.EncodeToString(sum[:])}
}

// ParseCriteria converts decoded JSON filter criteria into Criteria.
// Only scalar values are accepted; nested objects and arrays are
// rejected with ErrInvalidCriteria. A nil map yields nil Criteria.
func ParseCriteria(raw map[string]any) (Criteria, error) {
	if raw == nil {
		return nil, nil
	}
	criteria := make(Criteria, len(raw))
	for key, value := range raw {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("%w: empty filter key", ErrInvalidCriteria)
		}
		switch v := value.(type) {
		case nil:
			criteria[trimmedKey] = ""
		case string:
			criteria[trimmedKey] = v
		case bool:
			criteria[trimmedKey] = strconv.FormatBool(v)
		case float64:
			criteria[trimmedKey] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("%w: filter %q must be a scalar value", ErrInvalidCriteria, trimmedKey)
		}
	}
	return criteria, nil
}
