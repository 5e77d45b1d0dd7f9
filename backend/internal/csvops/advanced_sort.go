package csvops

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

// --- Sort modes / options ---

type SortMode string
type SortOrder string

const (
	SortAlpha   SortMode = "alphabetical"
	SortNumeric SortMode = "numeric"

	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

type AdvancedSortOptions struct {
	Mode            SortMode  `json:"mode"`             // alphabetical | numeric
	Order           SortOrder `json:"order"`            // asc | desc
	Key             string    `json:"key"`              // column name or numeric index string
	TrimSpaces      bool      `json:"trim_spaces"`      // apply trimming before comparisons
	CaseInsensitive bool      `json:"case_insensitive"` // for alphabetical mode
}

// Sort returns a stably sorted copy of tbl. In numeric mode values that do
// not parse always go to the end, whatever the order.
func Sort(tbl types.TableData, opts AdvancedSortOptions) (types.TableData, error) {
	if opts.Key == "" {
		return types.TableData{}, errors.New("sort key required")
	}
	if opts.Mode == "" {
		opts.Mode = SortAlpha
	}
	if opts.Mode != SortAlpha && opts.Mode != SortNumeric {
		return types.TableData{}, fmt.Errorf("unsupported sort mode '%s'", opts.Mode)
	}
	if opts.Order == "" {
		opts.Order = OrderAsc
	}
	if opts.Order != OrderAsc && opts.Order != OrderDesc {
		return types.TableData{}, fmt.Errorf("unsupported sort order '%s'", opts.Order)
	}
	idx, err := utils.ResolveKeyIndex(tbl, opts.Key)
	if err != nil {
		return types.TableData{}, fmt.Errorf("key resolution: %w", err)
	}

	type rowWrap struct {
		row      []string
		alphaKey string
		numKey   float64
		numOk    bool
	}
	wrapped := make([]rowWrap, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		cell := cellAt(r, idx)
		if opts.TrimSpaces {
			cell = strings.TrimSpace(cell)
		}
		w := rowWrap{row: append([]string(nil), r...), alphaKey: cell}
		if opts.CaseInsensitive {
			w.alphaKey = strings.ToLower(cell)
		}
		if opts.Mode == SortNumeric {
			w.numKey, w.numOk = tryParseNumber(cell)
		}
		wrapped = append(wrapped, w)
	}

	asc := opts.Order == OrderAsc
	sort.SliceStable(wrapped, func(i, j int) bool {
		a, b := wrapped[i], wrapped[j]
		if opts.Mode == SortNumeric {
			switch {
			case a.numOk && b.numOk:
				if a.numKey == b.numKey {
					return false
				}
				if asc {
					return a.numKey < b.numKey
				}
				return a.numKey > b.numKey
			case a.numOk != b.numOk:
				return a.numOk
			}
		}
		if a.alphaKey == b.alphaKey {
			return false
		}
		if asc {
			return a.alphaKey < b.alphaKey
		}
		return a.alphaKey > b.alphaKey
	})

	out := types.TableData{
		HasHeader: tbl.HasHeader,
		Header:    append([]string(nil), tbl.Header...),
		Rows:      make([][]string, 0, len(wrapped)),
	}
	for _, w := range wrapped {
		out.Rows = append(out.Rows, w.row)
	}
	return out, nil
}
