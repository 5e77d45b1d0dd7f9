// Package integrate merges the api, infra and kess datasets on the school
// identifier and writes the combined table.
package integrate

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JustUsingaWebsite/eduops/backend/internal/csvio"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvops"
	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// Dataset labels used by the default configuration.
const (
	API   = "api"
	KESS  = "kess"
	Infra = "infra"
)

// DefaultKey is the canonical join column.
const DefaultKey = "school_code"

// sampleSize bounds the unmatched keys echoed into a warning.
const sampleSize = 5

// Options configures one integration run.
type Options struct {
	Sources       map[string]string // dataset label -> CSV path
	Output        string
	ExcelOutput   string
	Key           string
	KeyAliases    []string
	Primary       string
	JoinOrder     []string
	WarnUnmatched bool
}

// DefaultOptions returns options reading the api/kess/infra sources at the
// given paths and writing to output.
func DefaultOptions(api, kess, infra, output string) Options {
	return Options{
		Sources:       map[string]string{API: api, KESS: kess, Infra: infra},
		Output:        output,
		Key:           DefaultKey,
		KeyAliases:    []string{"schoolCode", "학교코드"},
		Primary:       API,
		JoinOrder:     []string{Infra, KESS},
		WarnUnmatched: true,
	}
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Key) == "" {
		o.Key = DefaultKey
	}
	if o.KeyAliases == nil {
		o.KeyAliases = []string{"schoolCode", "학교코드"}
	}
	if o.Primary == "" {
		o.Primary = API
	}
	if o.JoinOrder == nil {
		o.JoinOrder = []string{Infra, KESS}
	}
	return o
}

// labels lists the datasets to load: primary, the join order, then any other
// configured source alphabetically.
func (o Options) labels() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(l string) {
		if _, ok := seen[l]; ok {
			return
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	add(o.Primary)
	for _, l := range o.JoinOrder {
		add(l)
	}
	rest := make([]string, 0, len(o.Sources))
	for l := range o.Sources {
		rest = append(rest, l)
	}
	sort.Strings(rest)
	for _, l := range rest {
		add(l)
	}
	return out
}

// Integrator runs load, key normalization, merge and save over the configured
// datasets. An Integrator is not safe for concurrent use.
type Integrator struct {
	opts     Options
	log      zerolog.Logger
	runID    string
	datasets map[string]*types.TableData
	plans    []csvops.JoinPlan
	coverage []csvops.CrossRefSummary
}

// New creates an integrator. Every log line carries the run id.
func New(opts Options, logger zerolog.Logger) *Integrator {
	id := uuid.NewString()
	return &Integrator{
		opts:  opts.withDefaults(),
		log:   logger.With().Str("component", "integrate").Str("run_id", id).Logger(),
		runID: id,
	}
}

// RunID identifies this run in the logs.
func (in *Integrator) RunID() string { return in.runID }

// Plans returns the join plans of the last merge, one per stage.
func (in *Integrator) Plans() []csvops.JoinPlan { return in.plans }

// Coverage returns, per joined dataset, how many primary keys it held.
func (in *Integrator) Coverage() []csvops.CrossRefSummary { return in.coverage }

// Dataset returns a loaded dataset by label.
func (in *Integrator) Dataset(label string) (types.TableData, bool) {
	tbl, ok := in.datasets[label]
	if !ok {
		return types.TableData{}, false
	}
	return *tbl, true
}

// Load reads every configured source. It succeeds only when all of them
// parse; on failure no dataset is retained.
func (in *Integrator) Load() error {
	in.datasets = nil
	loaded := make(map[string]*types.TableData, len(in.opts.Sources))

	for _, label := range in.opts.labels() {
		path, ok := in.opts.Sources[label]
		if !ok || strings.TrimSpace(path) == "" {
			return in.fail(&StageError{Stage: "load", Dataset: label, Kind: ErrMissingInput,
				Err: errors.New("no source path configured")})
		}
		tbl, err := csvio.ReadFile(path)
		if err != nil {
			return in.fail(&StageError{Stage: "load", Dataset: label, Path: path, Kind: ErrMissingInput, Err: err})
		}
		loaded[label] = &tbl
		in.log.Info().
			Str("dataset", label).
			Str("path", path).
			Int("rows", len(tbl.Rows)).
			Int("columns", len(tbl.Header)).
			Msg("dataset loaded")
	}

	in.datasets = loaded
	return nil
}

// NormalizeKeys renames a recognised alias to the canonical key, unless the
// canonical column already exists, and coerces key values to canonical text.
// Running it twice leaves the datasets unchanged.
func (in *Integrator) NormalizeKeys() {
	key := in.opts.Key
	for _, label := range in.opts.labels() {
		tbl, ok := in.datasets[label]
		if !ok {
			continue
		}
		if !tbl.HasColumn(key) {
			if from := in.findAlias(*tbl); from != "" && csvops.RenameColumn(tbl, from, key) {
				in.log.Debug().Str("dataset", label).Str("from", from).Str("to", key).Msg("key column renamed")
			}
		}
		if !tbl.HasColumn(key) {
			in.log.Warn().Str("dataset", label).Str("column", key).Msg("key column not found")
			continue
		}
		changed, err := csvops.CleanColumns(tbl, []string{key}, csvops.DataCleanOptions{TrimSpaces: true, CoerceKeys: true})
		if err != nil {
			in.log.Warn().Err(err).Str("dataset", label).Str("column", key).Msg("key coercion skipped")
			continue
		}
		in.log.Debug().Str("dataset", label).Int("changed", changed).Msg("key values coerced")
	}
}

// findAlias returns the header name to rename to the key. Header cells are
// compared trimmed so stray whitespace around a name still resolves.
func (in *Integrator) findAlias(tbl types.TableData) string {
	candidates := append([]string{in.opts.Key}, in.opts.KeyAliases...)
	for _, want := range candidates {
		for _, h := range tbl.Header {
			if strings.TrimSpace(h) == want {
				return h
			}
		}
	}
	return ""
}

// Merge left-joins the primary dataset with each dataset of the join order.
// Overlapping columns keep the left value and fall back to the right one
// when the left is missing. Any failure returns a nil table.
func (in *Integrator) Merge() (*types.TableData, error) {
	start := time.Now()
	in.plans = nil
	in.coverage = nil
	key := in.opts.Key

	if len(in.datasets) == 0 {
		return nil, in.fail(&StageError{Stage: "merge", Kind: ErrNotLoaded, Err: errors.New("no datasets loaded")})
	}
	stages := append([]string{in.opts.Primary}, in.opts.JoinOrder...)
	for _, label := range stages {
		tbl, ok := in.datasets[label]
		if !ok {
			return nil, in.fail(&StageError{Stage: "merge", Dataset: label, Kind: ErrNotLoaded})
		}
		if !tbl.HasColumn(key) {
			return nil, in.fail(&StageError{Stage: "merge", Dataset: label, Column: key, Kind: ErrMissingKey,
				Err: fmt.Errorf("header %v", tbl.Header)})
		}
	}

	primary := *in.datasets[in.opts.Primary]
	left := types.NamedTable{Name: in.opts.Primary, ListKey: key, Table: primary}
	for i, label := range in.opts.JoinOrder {
		right := types.NamedTable{Name: label, ListKey: key, Table: *in.datasets[label]}
		merged, plan, err := csvops.LeftJoin(left, right, key)
		if err != nil {
			in.plans = nil
			in.coverage = nil
			return nil, in.fail(&StageError{Stage: "merge", Dataset: label, Column: key, Kind: ErrMerge, Err: err})
		}
		plan.Stage = i + 1
		in.plans = append(in.plans, plan)

		in.log.Debug().
			Int("stage", plan.Stage).
			Str("left", plan.Left).
			Str("right", plan.Right).
			Strs("overlap", plan.Overlap).
			Strs("added", plan.Added).
			Int("matched", plan.Matched).
			Msg("join stage complete")
		if len(plan.DuplicateKeys) > 0 {
			in.log.Warn().
				Str("dataset", label).
				Int("count", len(plan.DuplicateKeys)).
				Strs("keys", sample(plan.DuplicateKeys)).
				Msg("duplicate keys in joined dataset, first row used")
		}
		if in.opts.WarnUnmatched {
			in.checkCoverage(primary, right)
		}

		left = types.NamedTable{Name: left.Name + "+" + label, ListKey: key, Table: merged}
	}

	if dup := duplicateColumn(left.Table.Header); dup != "" {
		in.plans = nil
		in.coverage = nil
		return nil, in.fail(&StageError{Stage: "merge", Column: dup, Kind: ErrMerge,
			Err: errors.New("duplicate column in merged table")})
	}

	in.log.Info().
		Int("rows", len(left.Table.Rows)).
		Int("columns", len(left.Table.Header)).
		Dur("elapsed", time.Since(start)).
		Msg("datasets merged")
	tbl := left.Table
	return &tbl, nil
}

// checkCoverage records which primary keys the dataset lacks and warns when
// there are any. Unmatched rows stay in the merged table.
func (in *Integrator) checkCoverage(primary types.TableData, list types.NamedTable) {
	res, err := csvops.CrossRef(csvops.CrossRefRequest{
		Operation: "coverage",
		Options: csvops.CrossRefOptions{
			MatchMethod: csvops.MatchExact,
			Action:      csvops.ActionMissingOnly,
			MasterKey:   in.opts.Key,
		},
		Datasets: csvops.CrossRefDatasets{Master: primary, List: list},
	})
	if err != nil {
		in.log.Warn().Err(err).Str("dataset", list.Name).Msg("coverage check skipped")
		return
	}
	in.coverage = append(in.coverage, res.Summary)
	if res.Summary.Missing > 0 {
		in.log.Warn().
			Str("dataset", list.Name).
			Int("unmatched", res.Summary.Missing).
			Int("rows", res.Summary.Processed).
			Strs("sample", sample(res.Summary.MissingKeys)).
			Msg("primary rows without a match")
	}
}

// Save writes tbl as UTF-8 CSV with a BOM, and an XLSX copy when one is
// configured. Both files are staged before either replaces its target.
func (in *Integrator) Save(tbl *types.TableData) error {
	if tbl == nil {
		return in.fail(&StageError{Stage: "save", Path: in.opts.Output, Kind: ErrWrite, Err: errors.New("no table to save")})
	}
	if strings.TrimSpace(in.opts.Output) == "" {
		return in.fail(&StageError{Stage: "save", Kind: ErrWrite, Err: errors.New("no output path configured")})
	}
	csvFile, err := csvio.StageFile(in.opts.Output, *tbl)
	if err != nil {
		return in.fail(&StageError{Stage: "save", Path: in.opts.Output, Kind: ErrWrite, Err: err})
	}
	if in.opts.ExcelOutput != "" {
		xlsx, err := csvio.StageExcel(in.opts.ExcelOutput, "integrated", *tbl)
		if err != nil {
			csvFile.Discard()
			return in.fail(&StageError{Stage: "save", Path: in.opts.ExcelOutput, Kind: ErrWrite, Err: err})
		}
		if err := xlsx.Commit(); err != nil {
			csvFile.Discard()
			return in.fail(&StageError{Stage: "save", Path: in.opts.ExcelOutput, Kind: ErrWrite, Err: err})
		}
		in.log.Info().Str("path", in.opts.ExcelOutput).Msg("workbook saved")
	}
	if err := csvFile.Commit(); err != nil {
		return in.fail(&StageError{Stage: "save", Path: in.opts.Output, Kind: ErrWrite, Err: err})
	}
	in.log.Info().Str("path", in.opts.Output).Int("rows", len(tbl.Rows)).Msg("merged table saved")
	return nil
}

// Integrate runs load, normalize, merge and save, stopping at the first
// failure. Datasets are released once the merge has been attempted.
func (in *Integrator) Integrate() (tbl *types.TableData, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			in.datasets = nil
			tbl = nil
			err = in.fail(&StageError{Stage: "integrate", Kind: ErrMerge, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	in.log.Info().Str("output", in.opts.Output).Msg("integration started")
	if err := in.Load(); err != nil {
		return nil, err
	}
	in.NormalizeKeys()

	merged, err := in.Merge()
	in.datasets = nil
	if err != nil {
		return nil, err
	}
	if err := in.Save(merged); err != nil {
		return nil, err
	}

	in.log.Info().Dur("elapsed", time.Since(start)).Msg("integration complete")
	return merged, nil
}

// Lookup loads and normalizes every source and returns the rows holding code
// in each of them. Datasets are released afterwards.
func (in *Integrator) Lookup(code string) (csvops.OneToManyResponse, error) {
	if err := in.Load(); err != nil {
		return csvops.OneToManyResponse{}, err
	}
	in.NormalizeKeys()
	defer func() { in.datasets = nil }()

	lists := make([]types.NamedTable, 0, len(in.datasets))
	for _, label := range in.opts.labels() {
		if tbl, ok := in.datasets[label]; ok {
			lists = append(lists, types.NamedTable{Name: label, ListKey: in.opts.Key, Table: *tbl})
		}
	}
	res, err := csvops.OneToMany(csvops.OneToManyRequest{
		Options: csvops.OneToManyOptions{MatchMethod: csvops.MatchExact, TrimSpaces: true, CoerceKeys: true},
		Target:  csvops.OneToManyTarget{Key: in.opts.Key, Value: code},
		Lists:   lists,
	})
	if err != nil {
		return res, in.fail(&StageError{Stage: "lookup", Column: in.opts.Key, Kind: ErrNotLoaded, Err: err})
	}
	in.log.Debug().Str("code", code).Int("matched", res.Summary.Matched).Msg("lookup complete")
	return res, nil
}

// fail logs se with its context fields and returns it.
func (in *Integrator) fail(se *StageError) error {
	ev := in.log.Error().Str("stage", se.Stage)
	if se.Dataset != "" {
		ev = ev.Str("dataset", se.Dataset)
	}
	if se.Column != "" {
		ev = ev.Str("column", se.Column)
	}
	if se.Path != "" {
		ev = ev.Str("path", se.Path)
	}
	if se.Err != nil {
		ev = ev.Err(se.Err)
	}
	if errors.Is(se.Err, os.ErrNotExist) {
		ev = ev.Bool("not_exist", true)
	}
	ev.Msg(se.Kind.Error())
	return se
}

func sample(keys []string) []string {
	if len(keys) > sampleSize {
		return keys[:sampleSize]
	}
	return keys
}

func duplicateColumn(header []string) string {
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, ok := seen[h]; ok {
			return h
		}
		seen[h] = struct{}{}
	}
	return ""
}
