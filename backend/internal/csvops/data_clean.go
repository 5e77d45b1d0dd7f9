package csvops

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

type DataCleanOptions struct {
	TrimSpaces      bool `json:"trim_spaces"`       // trim leading/trailing whitespace
	CollapseInnerWS bool `json:"collapse_inner_ws"` // collapse multiple internal whitespace to single space
	CoerceKeys      bool `json:"coerce_keys"`       // render identifiers as canonical text ("1234.0" -> "1234")
	CaseInsensitive bool `json:"case_insensitive"`  // used when resolving header names
}

// helper: collapse internal whitespace (convert runs of whitespace to single space)
func collapseInnerWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			b.WriteRune(r)
			lastWasSpace = false
		}
	}
	return b.String()
}

// resolveColumnsToIndices returns the indices for the requested column identifiers.
// If cols is empty, return all indices for the table.
func resolveColumnsToIndices(tbl types.TableData, cols []string, caseInsensitive bool) ([]int, error) {
	if len(cols) == 0 {
		indices := make([]int, 0, len(tbl.Header))
		for i := range tbl.Header {
			indices = append(indices, i)
		}
		return indices, nil
	}

	headerMap := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		key := h
		if caseInsensitive {
			key = strings.ToLower(strings.TrimSpace(key))
		}
		if _, dup := headerMap[key]; !dup {
			headerMap[key] = i
		}
	}

	indices := make([]int, 0, len(cols))
	for _, c := range cols {
		key := c
		if caseInsensitive {
			key = strings.ToLower(strings.TrimSpace(key))
		}
		if pos, ok := headerMap[key]; ok {
			indices = append(indices, pos)
			continue
		}
		return nil, fmt.Errorf("column '%s' not found in header", c)
	}
	return indices, nil
}

// applyTransforms applies trimming/coercion to a single cell according to options.
// returns (newVal, changed)
func applyTransforms(cell string, opts DataCleanOptions) (string, bool) {
	orig := cell
	if opts.TrimSpaces {
		cell = strings.TrimSpace(cell)
	}
	if opts.CollapseInnerWS {
		cell = collapseInnerWhitespace(cell)
	}
	if opts.CoerceKeys {
		cell = utils.CoerceKey(cell)
	}
	return cell, cell != orig
}

// CleanColumns runs cleaning ops on the selected columns of tbl in place and
// returns the number of modified cells. Short rows are padded to the header.
func CleanColumns(tbl *types.TableData, cols []string, opts DataCleanOptions) (int, error) {
	indices, err := resolveColumnsToIndices(*tbl, cols, opts.CaseInsensitive)
	if err != nil {
		return 0, err
	}
	modified := 0
	for r := range tbl.Rows {
		for _, colIdx := range indices {
			for colIdx >= len(tbl.Rows[r]) {
				tbl.Rows[r] = append(tbl.Rows[r], "")
			}
			if newVal, changed := applyTransforms(tbl.Rows[r][colIdx], opts); changed {
				tbl.Rows[r][colIdx] = newVal
				modified++
			}
		}
	}
	return modified, nil
}

// RenameColumn renames from to to. It reports false, leaving the header
// untouched, when from is absent or to already exists.
func RenameColumn(tbl *types.TableData, from, to string) bool {
	idx := tbl.ColumnIndex(from)
	if idx < 0 || from == to || tbl.HasColumn(to) {
		return false
	}
	tbl.Header[idx] = to
	return true
}
