package csvops

import (
	"errors"
	"strings"
	"time"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
	"github.com/JustUsingaWebsite/eduops/backend/internal/utils"
)

// --- match/action types ---
type MatchMethod string
type ActionType string

const (
	MatchExact           MatchMethod = "exact"
	MatchCaseInsensitive MatchMethod = "case_insensitive"

	ActionTagged      ActionType = "tagged"
	ActionMatchesOnly ActionType = "matches_only"
	ActionMissingOnly ActionType = "missing_only"
)

// --- request/response types for crossref ---

type CrossRefRequest struct {
	Operation string           `json:"operation"`
	Options   CrossRefOptions  `json:"options"`
	Datasets  CrossRefDatasets `json:"datasets"`
}

type CrossRefOptions struct {
	MatchMethod     MatchMethod `json:"match_method"`
	Action          ActionType  `json:"action"`
	MasterKey       string      `json:"master_key"`
	ListKey         string      `json:"list_key"`
	TrimSpaces      bool        `json:"trim_spaces"`
	FoundColumnName string      `json:"found_column_name"`
}

// CrossRefDatasets holds the table being checked (Master) and the named
// table whose keys it is checked against (List).
type CrossRefDatasets struct {
	Master types.TableData  `json:"master"`
	List   types.NamedTable `json:"list"`
}

type CrossRefResponse struct {
	Operation string          `json:"operation"`
	Summary   CrossRefSummary `json:"summary"`
	Result    types.TableData `json:"result"`
	Error     *string         `json:"error"`
}

// CrossRefSummary is the coverage of master keys within one list.
type CrossRefSummary struct {
	Dataset string `json:"dataset"`
	types.ResultSummary
	MissingKeys []string `json:"missing_keys"`
}

// CrossRef checks every master row's key against the keys of the list.
// Result rows are master rows, filtered or tagged according to the action.
func CrossRef(req CrossRefRequest) (CrossRefResponse, error) {
	var res CrossRefResponse
	res.Operation = req.Operation
	res.Summary.Dataset = req.Datasets.List.Name
	start := time.Now()

	if strings.TrimSpace(req.Options.MasterKey) == "" {
		return resWithErr(res, "master_key is required"), errors.New("master_key required")
	}
	if req.Options.Action == "" {
		req.Options.Action = ActionMissingOnly
	}
	mKey := req.Options.MasterKey
	lKey := req.Options.ListKey
	if strings.TrimSpace(lKey) == "" {
		lKey = mKey
	}

	mKeyIdx, err := utils.ResolveKeyIndex(req.Datasets.Master, mKey)
	if err != nil {
		return resWithErr(res, "master key resolution: "+err.Error()), err
	}
	lKeyIdx, err := utils.ResolveKeyIndex(req.Datasets.List.Table, lKey)
	if err != nil {
		return resWithErr(res, "list key resolution: "+err.Error()), err
	}

	caseInsensitive := req.Options.MatchMethod == MatchCaseInsensitive
	listSet := make(map[string]struct{}, len(req.Datasets.List.Table.Rows))
	for _, row := range req.Datasets.List.Table.Rows {
		val := cellAt(row, lKeyIdx)
		if utils.IsMissing(val) {
			continue
		}
		listSet[utils.Normalize(val, req.Options.TrimSpaces, caseInsensitive)] = struct{}{}
	}

	resultHeader := append([]string(nil), req.Datasets.Master.Header...)
	if req.Options.Action == ActionTagged {
		foundName := req.Options.FoundColumnName
		if strings.TrimSpace(foundName) == "" {
			foundName = "found_in_" + req.Datasets.List.Name
		}
		resultHeader = append(resultHeader, foundName)
	}

	var processed, matched, missing int
	missingKeys := []string{}
	resultRows := make([][]string, 0, len(req.Datasets.Master.Rows))
	for _, row := range req.Datasets.Master.Rows {
		processed++
		k := cellAt(row, mKeyIdx)
		present := false
		if !utils.IsMissing(k) {
			_, present = listSet[utils.Normalize(k, req.Options.TrimSpaces, caseInsensitive)]
		}
		if present {
			matched++
		} else {
			missing++
			missingKeys = append(missingKeys, k)
		}

		switch req.Options.Action {
		case ActionTagged:
			newRow := append([]string(nil), row...)
			newRow = append(newRow, boolText(present))
			resultRows = append(resultRows, newRow)
		case ActionMatchesOnly:
			if present {
				resultRows = append(resultRows, append([]string(nil), row...))
			}
		case ActionMissingOnly:
			if !present {
				resultRows = append(resultRows, append([]string(nil), row...))
			}
		default:
			return resWithErr(res, "unsupported action"), errors.New("unsupported action")
		}
	}

	res.Summary.ResultSummary = types.ResultSummary{
		Processed:  processed,
		Matched:    matched,
		Missing:    missing,
		DurationMS: time.Since(start).Milliseconds(),
	}
	res.Summary.MissingKeys = missingKeys
	res.Result = types.TableData{
		HasHeader: req.Datasets.Master.HasHeader,
		Header:    resultHeader,
		Rows:      resultRows,
	}
	return res, nil
}

// --- helpers ---
func resWithErr(r CrossRefResponse, msg string) CrossRefResponse {
	r.Error = &msg
	return r
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
