package utils

import (
	"errors"
	"strconv"
	"strings"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// missingMarkers are the cell values read as "no value", on top of the empty string.
var missingMarkers = map[string]struct{}{
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

// WhitespaceTrimmer removes leading/trailing whitespace and collapses internal whitespace.
func WhitespaceTrimmer(s string) string {
	// strings.Fields will collapse all whitespace runs into single spaces
	parts := strings.Fields(s)
	return strings.Join(parts, " ")
}

// ResolveKeyIndex returns the column index for a key which can be a header name or numeric index string.
// If the table has no header, key must be numeric.
func ResolveKeyIndex(tbl types.TableData, key string) (int, error) {
	if tbl.HasHeader {
		keyTrim := strings.TrimSpace(key)
		for i, h := range tbl.Header {
			if strings.EqualFold(strings.TrimSpace(h), keyTrim) {
				return i, nil
			}
		}
		// fallback: maybe key is numeric string
		if idx, ok := ParseIndexString(key); ok {
			if idx >= len(tbl.Header) {
				return -1, errors.New("numeric key index out of range")
			}
			return idx, nil
		}
		return -1, errors.New("key not found in header")
	}
	// no header - key must be numeric
	idx, ok := ParseIndexString(key)
	if !ok {
		return -1, errors.New("no header: key must be numeric index string")
	}
	return idx, nil
}

// ParseIndexString parses a non-negative column index.
func ParseIndexString(s string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Normalize applies trimming and case normalization according to flags.
func Normalize(val string, trim bool, caseInsensitive bool) string {
	if trim {
		val = WhitespaceTrimmer(val)
	}
	if caseInsensitive {
		val = strings.ToLower(val)
	}
	return val
}

// IsMissing reports whether a cell holds no value.
func IsMissing(val string) bool {
	v := strings.TrimSpace(val)
	if v == "" {
		return true
	}
	_, ok := missingMarkers[strings.ToLower(v)]
	return ok
}

// CoerceKey renders a key cell as canonical text: trimmed, with integral
// float renderings such as "1234.0" reduced to "1234". Leading zeros stay.
func CoerceKey(val string) string {
	v := strings.TrimSpace(val)
	if dot := strings.IndexByte(v, '.'); dot > 0 {
		intPart, frac := v[:dot], v[dot+1:]
		if frac != "" && strings.Trim(frac, "0") == "" && isDigits(intPart) {
			return intPart
		}
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
