package csvops

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

// --- Filter condition types ---

type ConditionOperator string

const (
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "not_equals"
	OpContains  ConditionOperator = "contains"
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
	OpGt        ConditionOperator = "gt"
	OpGte       ConditionOperator = "gte"
	OpLt        ConditionOperator = "lt"
	OpLte       ConditionOperator = "lte"
	OpIsNull    ConditionOperator = "is_null"
	OpIsNotNull ConditionOperator = "is_not_null"
)

// Condition describes a single atomic condition
type Condition struct {
	Column   string            `json:"column"`
	Operator ConditionOperator `json:"operator"`
	Value    interface{}       `json:"value,omitempty"` // string | number | []string
}

// ConditionGroup composes conditions with logical operators
type ConditionGroup struct {
	Op        string           `json:"op"` // "and" | "or"
	Conds     []Condition      `json:"conds,omitempty"`
	SubGroups []ConditionGroup `json:"subgroups,omitempty"`
}

type AdvancedExtractOptions struct {
	TrimSpaces      bool `json:"trim_spaces"`
	CaseInsensitive bool `json:"case_insensitive"`
}

// tryParseNumber parses s as float64, accepting thousands separators.
func tryParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// stringInList: supports []string, []interface{} or a comma-separated string
func stringInList(elem string, listVal interface{}, caseInsensitive bool) bool {
	var items []string
	switch v := listVal.(type) {
	case nil:
		return false
	case []string:
		items = v
	case []interface{}:
		for _, it := range v {
			items = append(items, fmt.Sprintf("%v", it))
		}
	default:
		items = strings.Split(fmt.Sprintf("%v", listVal), ",")
	}
	for _, it := range items {
		it = strings.TrimSpace(it)
		if caseInsensitive && strings.EqualFold(elem, it) {
			return true
		}
		if elem == it {
			return true
		}
	}
	return false
}

// evalCondition evaluates a single condition against a row
func evalCondition(cond Condition, row []string, headerMap map[string]int, opts AdvancedExtractOptions) (bool, error) {
	idx, ok := headerMap[strings.ToLower(strings.TrimSpace(cond.Column))]
	if !ok {
		return false, fmt.Errorf("column '%s' not found in dataset", cond.Column)
	}
	cell := cellAt(row, idx)
	if opts.TrimSpaces {
		cell = utils.WhitespaceTrimmer(cell)
	}
	vstr := strings.TrimSpace(fmt.Sprintf("%v", cond.Value))

	switch cond.Operator {
	case OpEquals, OpNotEquals:
		var eq bool
		if v, isNum := cond.Value.(float64); isNum {
			n, ok := tryParseNumber(cell)
			eq = ok && n == v
		} else if opts.CaseInsensitive {
			eq = strings.EqualFold(cell, vstr)
		} else {
			eq = cell == vstr
		}
		if cond.Operator == OpNotEquals {
			return !eq, nil
		}
		return eq, nil
	case OpContains:
		if opts.CaseInsensitive {
			return strings.Contains(strings.ToLower(cell), strings.ToLower(vstr)), nil
		}
		return strings.Contains(cell, vstr), nil
	case OpIn:
		return stringInList(cell, cond.Value, opts.CaseInsensitive), nil
	case OpNotIn:
		return !stringInList(cell, cond.Value, opts.CaseInsensitive), nil
	case OpGt, OpGte, OpLt, OpLte:
		var vnum float64
		switch v := cond.Value.(type) {
		case float64:
			vnum = v
		case int:
			vnum = float64(v)
		default:
			parsed, ok := tryParseNumber(vstr)
			if !ok {
				return false, fmt.Errorf("operator %s needs a numeric value, got %q", cond.Operator, vstr)
			}
			vnum = parsed
		}
		cnum, ok := tryParseNumber(cell)
		if !ok {
			return false, nil
		}
		switch cond.Operator {
		case OpGt:
			return cnum > vnum, nil
		case OpGte:
			return cnum >= vnum, nil
		case OpLt:
			return cnum < vnum, nil
		default:
			return cnum <= vnum, nil
		}
	case OpIsNull:
		return utils.IsMissing(cell), nil
	case OpIsNotNull:
		return !utils.IsMissing(cell), nil
	default:
		return false, fmt.Errorf("unsupported operator '%s'", cond.Operator)
	}
}

// evalGroup evaluates a group; an empty group matches every row.
func evalGroup(g ConditionGroup, row []string, headerMap map[string]int, opts AdvancedExtractOptions) (bool, error) {
	isOr := strings.EqualFold(g.Op, "or")
	if len(g.Conds) == 0 && len(g.SubGroups) == 0 {
		return true, nil
	}
	for _, c := range g.Conds {
		ok, err := evalCondition(c, row, headerMap, opts)
		if err != nil {
			return false, err
		}
		if isOr && ok {
			return true, nil
		}
		if !isOr && !ok {
			return false, nil
		}
	}
	for _, sg := range g.SubGroups {
		ok, err := evalGroup(sg, row, headerMap, opts)
		if err != nil {
			return false, err
		}
		if isOr && ok {
			return true, nil
		}
		if !isOr && !ok {
			return false, nil
		}
	}
	return !isOr, nil
}

// Extract returns the rows of tbl matching the filter group.
func Extract(tbl types.TableData, filter ConditionGroup, opts AdvancedExtractOptions) (types.TableData, types.ResultSummary, error) {
	start := time.Now()
	if !tbl.HasHeader {
		return types.TableData{}, types.ResultSummary{}, errors.New("extract requires a header row")
	}
	headerMap := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := headerMap[key]; !dup {
			headerMap[key] = i
		}
	}

	out := types.TableData{HasHeader: true, Header: append([]string(nil), tbl.Header...), Rows: [][]string{}}
	var summary types.ResultSummary
	for _, row := range tbl.Rows {
		summary.Processed++
		ok, err := evalGroup(filter, row, headerMap, opts)
		if err != nil {
			return types.TableData{}, summary, err
		}
		if ok {
			summary.Matched++
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	summary.Missing = summary.Processed - summary.Matched
	summary.DurationMS = time.Since(start).Milliseconds()
	return out, summary, nil
}
