package csvops

import (
	"errors"
	"strings"
	"time"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

// OneToMany searches N named tables for rows matching target key=value and
// returns the matches per table. A key that cannot be resolved in one table
// is reported on that table only.

type OneToManyRequest struct {
	Options OneToManyOptions   `json:"options"`
	Target  OneToManyTarget    `json:"target"`
	Lists   []types.NamedTable `json:"lists"`
}

type OneToManyOptions struct {
	MatchMethod MatchMethod `json:"match_method"` // exact | case_insensitive
	TrimSpaces  bool        `json:"trim_spaces"`
	CoerceKeys  bool        `json:"coerce_keys"` // compare identifiers in canonical text form
}

type OneToManyTarget struct {
	Key   string `json:"key"`   // column name or numeric index string, e.g. "school_code"
	Value string `json:"value"` // value to look up, e.g. "7010057"
}

type OneToManyPerList struct {
	Name      string          `json:"name"`
	Processed int             `json:"processed"`
	Matched   int             `json:"matched"`
	Result    types.TableData `json:"result"`
	Error     *string         `json:"error"`
}

type OneToManyResponse struct {
	Summary types.ResultSummary `json:"summary"`
	PerList []OneToManyPerList  `json:"per_list"`
}

func (o OneToManyOptions) normalize(v string) string {
	if o.CoerceKeys {
		v = utils.CoerceKey(v)
	}
	return utils.Normalize(v, o.TrimSpaces, o.MatchMethod == MatchCaseInsensitive)
}

// OneToMany searches every list for rows where target.key == target.value.
func OneToMany(req OneToManyRequest) (OneToManyResponse, error) {
	var res OneToManyResponse
	start := time.Now()

	if strings.TrimSpace(req.Target.Key) == "" || strings.TrimSpace(req.Target.Value) == "" {
		return res, errors.New("target.key and target.value are required")
	}
	if len(req.Lists) == 0 {
		return res, errors.New("at least one dataset required")
	}

	targetNorm := req.Options.normalize(req.Target.Value)
	res.PerList = make([]OneToManyPerList, 0, len(req.Lists))

	for _, named := range req.Lists {
		pl := OneToManyPerList{
			Name: named.Name,
			Result: types.TableData{
				HasHeader: named.Table.HasHeader,
				Header:    append([]string(nil), named.Table.Header...),
				Rows:      [][]string{},
			},
		}

		listKey := strings.TrimSpace(named.ListKey)
		if listKey == "" {
			listKey = req.Target.Key
		}
		keyIdx, err := utils.ResolveKeyIndex(named.Table, listKey)
		if err != nil {
			msg := "list key resolution: " + err.Error() + ". available headers for list '" + named.Name + "': [" + strings.Join(named.Table.Header, ", ") + "]"
			pl.Error = &msg
			res.PerList = append(res.PerList, pl)
			continue
		}

		for _, row := range named.Table.Rows {
			pl.Processed++
			if req.Options.normalize(cellAt(row, keyIdx)) == targetNorm {
				pl.Matched++
				pl.Result.Rows = append(pl.Result.Rows, append([]string(nil), row...))
			}
		}
		res.Summary.Processed += pl.Processed
		res.Summary.Matched += pl.Matched
		res.PerList = append(res.PerList, pl)
	}

	res.Summary.Missing = res.Summary.Processed - res.Summary.Matched
	res.Summary.DurationMS = time.Since(start).Milliseconds()
	return res, nil
}
