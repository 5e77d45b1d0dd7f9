package csvops

import (
	"fmt"
	"time"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

// JoinPlan records what a single left join did. Overlap lists the non-key
// columns present on both sides; each one is emitted once, left value first.
type JoinPlan struct {
	Stage         int      `json:"stage"`
	Left          string   `json:"left"`
	Right         string   `json:"right"`
	Key           string   `json:"key"`
	Overlap       []string `json:"overlap"`
	Added         []string `json:"added"`
	Matched       int      `json:"matched"`
	Unmatched     int      `json:"unmatched"`
	DuplicateKeys []string `json:"duplicate_keys,omitempty"`
	DurationMS    int64    `json:"durationMs"`
}

// PlanJoin declares the overlapping and added columns for joining right onto
// left on key, without touching any rows.
func PlanJoin(left, right types.NamedTable, key string) (JoinPlan, error) {
	plan := JoinPlan{Left: left.Name, Right: right.Name, Key: key}

	if err := uniqueHeader(left); err != nil {
		return plan, err
	}
	if err := uniqueHeader(right); err != nil {
		return plan, err
	}
	if !left.Table.HasColumn(key) {
		return plan, fmt.Errorf("key column '%s' not found in %s", key, left.Name)
	}
	if !right.Table.HasColumn(key) {
		return plan, fmt.Errorf("key column '%s' not found in %s", key, right.Name)
	}

	plan.Overlap = []string{}
	plan.Added = []string{}
	for _, h := range right.Table.Header {
		if h == key {
			continue
		}
		if left.Table.HasColumn(h) {
			plan.Overlap = append(plan.Overlap, h)
		} else {
			plan.Added = append(plan.Added, h)
		}
	}
	return plan, nil
}

// LeftJoin keeps every left row exactly once and in order. Right rows are
// looked up by exact key; when the right side repeats a key the first row
// wins and the key is listed in plan.DuplicateKeys. Rows whose key is
// missing never match.
func LeftJoin(left, right types.NamedTable, key string) (types.TableData, JoinPlan, error) {
	start := time.Now()
	plan, err := PlanJoin(left, right, key)
	if err != nil {
		return types.TableData{}, plan, err
	}

	lKey := left.Table.ColumnIndex(key)
	rKey := right.Table.ColumnIndex(key)

	lookup := make(map[string]int, len(right.Table.Rows))
	dupSeen := map[string]struct{}{}
	for i, row := range right.Table.Rows {
		k := cellAt(row, rKey)
		if utils.IsMissing(k) {
			continue
		}
		if _, ok := lookup[k]; ok {
			if _, seen := dupSeen[k]; !seen {
				dupSeen[k] = struct{}{}
				plan.DuplicateKeys = append(plan.DuplicateKeys, k)
			}
			continue
		}
		lookup[k] = i
	}

	// overlap and added columns as (left index, right index) pairs
	type colPair struct{ l, r int }
	overlap := make([]colPair, 0, len(plan.Overlap))
	for _, name := range plan.Overlap {
		overlap = append(overlap, colPair{l: left.Table.ColumnIndex(name), r: right.Table.ColumnIndex(name)})
	}
	added := make([]int, 0, len(plan.Added))
	for _, name := range plan.Added {
		added = append(added, right.Table.ColumnIndex(name))
	}

	header := append([]string(nil), left.Table.Header...)
	header = append(header, plan.Added...)
	width := len(left.Table.Header)

	rows := make([][]string, 0, len(left.Table.Rows))
	for _, lrow := range left.Table.Rows {
		out := make([]string, len(header))
		copy(out[:width], lrow)

		ridx, found := -1, false
		if k := cellAt(lrow, lKey); !utils.IsMissing(k) {
			ridx, found = lookup[k]
		}
		if !found {
			plan.Unmatched++
			rows = append(rows, out)
			continue
		}
		plan.Matched++
		rrow := right.Table.Rows[ridx]
		for _, p := range overlap {
			if utils.IsMissing(out[p.l]) && !utils.IsMissing(cellAt(rrow, p.r)) {
				out[p.l] = cellAt(rrow, p.r)
			}
		}
		for i, ri := range added {
			out[width+i] = cellAt(rrow, ri)
		}
		rows = append(rows, out)
	}

	plan.DurationMS = time.Since(start).Milliseconds()
	return types.TableData{HasHeader: true, Header: header, Rows: rows}, plan, nil
}

func uniqueHeader(nt types.NamedTable) error {
	seen := make(map[string]struct{}, len(nt.Table.Header))
	for _, h := range nt.Table.Header {
		if _, ok := seen[h]; ok {
			return fmt.Errorf("duplicate column '%s' in %s", h, nt.Name)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
