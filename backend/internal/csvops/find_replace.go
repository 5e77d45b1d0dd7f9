package csvops

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// ReplaceRule maps several spellings of a value onto one replacement, e.g.
// ["서울", "서울시"] -> "서울특별시".
type ReplaceRule struct {
	Targets         []string `json:"targets" yaml:"targets"`
	Replacement     string   `json:"replacement" yaml:"replacement"`
	CaseInsensitive *bool    `json:"case_insensitive,omitempty" yaml:"case_insensitive,omitempty"` // nil => ReplaceOptions default
	WholeCell       *bool    `json:"whole_cell,omitempty" yaml:"whole_cell,omitempty"`             // nil => substring replace
}

type ReplaceOptions struct {
	TrimSpaces      bool     `json:"trim_spaces"`       // trim cells before matching
	CaseInsensitive bool     `json:"case_insensitive"`  // default for rules without their own setting
	Columns         []string `json:"columns,omitempty"` // empty => all columns
}

// RuleResult reports how many replacements one rule made. Whole-cell rules
// count changed cells, substring rules count occurrences.
type RuleResult struct {
	Index        int      `json:"index"`
	Targets      []string `json:"targets"`
	Replacement  string   `json:"replacement"`
	Replacements int      `json:"replacements"`
}

type compiledRule struct {
	rule      ReplaceRule
	re        *regexp.Regexp
	wholeCell bool
}

func compileRule(r ReplaceRule, defaultCI bool) (compiledRule, error) {
	if len(r.Targets) == 0 {
		return compiledRule{}, errors.New("empty targets")
	}
	ci := defaultCI
	if r.CaseInsensitive != nil {
		ci = *r.CaseInsensitive
	}
	wc := r.WholeCell != nil && *r.WholeCell

	parts := make([]string, 0, len(r.Targets))
	for _, t := range r.Targets {
		parts = append(parts, regexp.QuoteMeta(t))
	}
	pat := "(?:" + strings.Join(parts, "|") + ")"
	if wc {
		pat = "^" + pat + "$"
	}
	if ci {
		pat = "(?i)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return compiledRule{}, fmt.Errorf("compile regex: %w", err)
	}
	return compiledRule{rule: r, re: re, wholeCell: wc}, nil
}

// Replace applies rules in order to the selected columns and returns a new
// table. Later rules see the output of earlier ones.
func Replace(tbl types.TableData, rules []ReplaceRule, opts ReplaceOptions) (types.TableData, []RuleResult, error) {
	if len(rules) == 0 {
		return types.TableData{}, nil, errors.New("no rules provided")
	}
	indices, err := resolveColumnsToIndices(tbl, opts.Columns, true)
	if err != nil {
		return types.TableData{}, nil, err
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		cr, err := compileRule(r, opts.CaseInsensitive)
		if err != nil {
			return types.TableData{}, nil, fmt.Errorf("rule %d: %w", i, err)
		}
		compiled = append(compiled, cr)
	}

	out := tbl.Clone()
	counts := make([]int, len(compiled))
	for ri := range out.Rows {
		for _, colIdx := range indices {
			for colIdx >= len(out.Rows[ri]) {
				out.Rows[ri] = append(out.Rows[ri], "")
			}
			orig := out.Rows[ri][colIdx]
			cell := orig
			if opts.TrimSpaces {
				cell = strings.TrimSpace(cell)
			}
			for i, cr := range compiled {
				if cr.wholeCell {
					if cr.re.MatchString(cell) {
						cell = cr.rule.Replacement
						counts[i]++
					}
					continue
				}
				n := 0
				cell = cr.re.ReplaceAllStringFunc(cell, func(string) string {
					n++
					return cr.rule.Replacement
				})
				counts[i] += n
			}
			if cell != orig {
				out.Rows[ri][colIdx] = cell
			}
		}
	}

	results := make([]RuleResult, len(compiled))
	for i, cr := range compiled {
		results[i] = RuleResult{
			Index:        i,
			Targets:      cr.rule.Targets,
			Replacement:  cr.rule.Replacement,
			Replacements: counts[i],
		}
	}
	return out, results, nil
}
