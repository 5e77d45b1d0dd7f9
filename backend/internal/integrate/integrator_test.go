package integrate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JustUsingaWebsite/eduops/backend/internal/csvio"
	"github.com/JustUsingaWebsite/eduops/backend/internal/logging"
	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	dir  string
	opts Options
	log  *logging.TestLogger
}

func newFixture(t *testing.T, api, infra, kess string) fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	opts := DefaultOptions(
		write("education_data.csv", api),
		write("kess_stats.csv", kess),
		write("school_digital_infra.csv", infra),
		filepath.Join(dir, "integrated_education_data.csv"),
	)
	return fixture{dir: dir, opts: opts, log: logging.NewTestLogger(t)}
}

func (f fixture) integrator() *Integrator {
	return New(f.opts, f.log.Logger)
}

func TestIntegrateBasicScenario(t *testing.T) {
	f := newFixture(t,
		"school_code,x\n001,1\n",
		"school_code,y\n001,2\n",
		"\xef\xbb\xbf학교코드,z\n001,3\n",
	)
	tbl, err := f.integrator().Integrate()
	require.NoError(t, err)
	require.NotNil(t, tbl)

	want := types.TableData{
		HasHeader: true,
		Header:    []string{"school_code", "x", "y", "z"},
		Rows:      [][]string{{"001", "1", "2", "3"}},
	}
	if diff := cmp.Diff(want, *tbl); diff != "" {
		t.Errorf("merged table mismatch (-want +got):\n%s", diff)
	}

	saved, err := csvio.ReadFile(f.opts.Output)
	require.NoError(t, err)
	assert.Equal(t, want, saved)

	raw, err := os.ReadFile(f.opts.Output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "\xef\xbb\xbf"))
}

func TestIntegrateOverlapFallback(t *testing.T) {
	f := newFixture(t,
		"school_code,score,name\n001,null,A\n002,4,B\n003,NA,C\n",
		"school_code,score\n001,5\n002,9\n",
		"school_code,score\n003,7\n",
	)
	tbl, err := f.integrator().Integrate()
	require.NoError(t, err)

	assert.Equal(t, []string{"school_code", "score", "name"}, tbl.Header)
	assert.Equal(t, [][]string{
		{"001", "5", "A"},
		{"002", "4", "B"},
		{"003", "7", "C"},
	}, tbl.Rows)
}

func TestIntegratePreservesPrimaryRows(t *testing.T) {
	f := newFixture(t,
		"school_code,region\n1,서울\n2,부산\n3,대구\n,세종\n",
		"school_code,pcs\n1,10\n1,11\n9,99\n",
		"schoolCode,teachers\n2.0,30\n",
	)
	in := f.integrator()
	tbl, err := in.Integrate()
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 4)
	assert.Equal(t, []string{"school_code", "region", "pcs", "teachers"}, tbl.Header)
	assert.Equal(t, []string{"1", "서울", "10", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"2", "부산", "", "30"}, tbl.Rows[1])
	assert.Equal(t, []string{"", "세종", "", ""}, tbl.Rows[3])

	for _, h := range tbl.Header {
		assert.False(t, strings.HasSuffix(h, "_x") || strings.HasSuffix(h, "_y"), "suffixed column %q", h)
	}

	plans := in.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, 1, plans[0].Stage)
	assert.Equal(t, []string{"1"}, plans[0].DuplicateKeys)
	assert.Equal(t, "api+infra", plans[1].Left)

	cov := in.Coverage()
	require.Len(t, cov, 2)
	assert.Equal(t, Infra, cov[0].Dataset)
	assert.Equal(t, 3, cov[0].Missing)
	assert.Equal(t, []string{"2", "3", ""}, cov[0].MissingKeys)

	f.log.AssertContains(t, "primary rows without a match")
	f.log.AssertContains(t, "duplicate keys in joined dataset")
	f.log.AssertContains(t, in.RunID())
}

func TestNormalizeKeysIdempotent(t *testing.T) {
	f := newFixture(t,
		"school_code,x\n1234.0,a\n 0012 ,b\n7.50,c\n",
		"school_code,y\n1234,1\n",
		" 학교코드 ,z\n1234.00,1\n",
	)
	in := f.integrator()
	require.NoError(t, in.Load())

	in.NormalizeKeys()
	api, ok := in.Dataset(API)
	require.True(t, ok)
	first := api.Clone()
	assert.Equal(t, []string{"1234", "0012", "7.50"}, column(first, 0))

	kess, _ := in.Dataset(KESS)
	assert.Equal(t, "school_code", kess.Header[0])
	assert.Equal(t, []string{"1234"}, column(kess, 0))

	in.NormalizeKeys()
	again, _ := in.Dataset(API)
	assert.Equal(t, first, again)
}

func TestNormalizeKeysKeepsCanonicalColumn(t *testing.T) {
	f := newFixture(t,
		"school_code,학교코드\n1,X\n",
		"school_code\n1\n",
		"school_code\n1\n",
	)
	in := f.integrator()
	require.NoError(t, in.Load())
	in.NormalizeKeys()

	api, _ := in.Dataset(API)
	assert.Equal(t, []string{"school_code", "학교코드"}, api.Header)
}

func TestIntegrateMissingInputWritesNothing(t *testing.T) {
	f := newFixture(t, "school_code\n1\n", "school_code\n1\n", "school_code\n1\n")
	f.opts.Sources[KESS] = filepath.Join(f.dir, "absent.csv")

	tbl, err := f.integrator().Integrate()
	assert.Nil(t, tbl)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "load", se.Stage)
	assert.Equal(t, KESS, se.Dataset)

	_, statErr := os.Stat(f.opts.Output)
	assert.True(t, os.IsNotExist(statErr), "no output file expected")
	f.log.AssertContains(t, `"stage":"load"`)
}

func TestIntegrateFailureLeavesExistingOutput(t *testing.T) {
	f := newFixture(t, "school_code\n1\n", "id\n1\n", "school_code\n1\n")
	require.NoError(t, os.WriteFile(f.opts.Output, []byte("previous"), 0o644))

	tbl, err := f.integrator().Integrate()
	assert.Nil(t, tbl)
	assert.ErrorIs(t, err, ErrMissingKey)

	data, readErr := os.ReadFile(f.opts.Output)
	require.NoError(t, readErr)
	assert.Equal(t, "previous", string(data))
}

func TestIntegrateWorkbookFailureLeavesExistingOutput(t *testing.T) {
	f := newFixture(t, "school_code,x\n1,a\n", "school_code\n1\n", "school_code\n1\n")
	require.NoError(t, os.WriteFile(f.opts.Output, []byte("previous"), 0o644))
	f.opts.ExcelOutput = filepath.Join(f.dir, "missing", "integrated.xlsx")

	tbl, err := f.integrator().Integrate()
	assert.Nil(t, tbl)
	assert.ErrorIs(t, err, ErrWrite)

	data, readErr := os.ReadFile(f.opts.Output)
	require.NoError(t, readErr)
	assert.Equal(t, "previous", string(data))

	entries, readErr := os.ReadDir(f.dir)
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestIntegrateOverlapAcrossAllSources(t *testing.T) {
	f := newFixture(t,
		"school_code,score\n001,1\n002,\n003,NA\n004,\n",
		"school_code,score\n001,2\n002,5\n003,\n",
		"school_code,score\n001,3\n002,9\n003,8\n",
	)
	tbl, err := f.integrator().Integrate()
	require.NoError(t, err)

	assert.Equal(t, []string{"school_code", "score"}, tbl.Header)
	// api wins, then infra, and kess only fills what both left empty.
	assert.Equal(t, []string{"1", "5", "8", ""}, column(*tbl, 1))
}

func TestMergeErrors(t *testing.T) {
	f := newFixture(t, "school_code\n1\n", "school_code\n1\n", "school_code\n1\n")

	_, err := f.integrator().Merge()
	assert.ErrorIs(t, err, ErrNotLoaded)

	in := New(Options{
		Sources: map[string]string{API: f.opts.Sources[API]},
		Output:  f.opts.Output,
	}, f.log.Logger)
	assert.ErrorIs(t, in.Load(), ErrMissingInput)

	in = New(Options{
		Sources:   map[string]string{API: f.opts.Sources[API], Infra: f.opts.Sources[Infra]},
		JoinOrder: []string{Infra},
	}, f.log.Logger)
	require.NoError(t, in.Load())
	in.NormalizeKeys()
	tbl, err := in.Merge()
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}

func TestIntegrateClearsDatasets(t *testing.T) {
	f := newFixture(t, "school_code\n1\n", "school_code\n1\n", "school_code\n1\n")
	in := f.integrator()
	_, err := in.Integrate()
	require.NoError(t, err)
	_, ok := in.Dataset(API)
	assert.False(t, ok)
}

func TestSaveWritesWorkbook(t *testing.T) {
	f := newFixture(t, "school_code,x\n1,a\n", "school_code\n1\n", "school_code\n1\n")
	f.opts.ExcelOutput = filepath.Join(f.dir, "integrated.xlsx")
	_, err := f.integrator().Integrate()
	require.NoError(t, err)

	_, statErr := os.Stat(f.opts.ExcelOutput)
	assert.NoError(t, statErr)
}

func TestSaveRejectsNilTable(t *testing.T) {
	f := newFixture(t, "school_code\n1\n", "school_code\n1\n", "school_code\n1\n")
	err := f.integrator().Save(nil)
	assert.ErrorIs(t, err, ErrWrite)
}

func column(tbl types.TableData, idx int) []string {
	out := make([]string, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		out = append(out, r[idx])
	}
	return out
}

func TestLookup(t *testing.T) {
	f := newFixture(t,
		"school_code,x\n001,1\n002,2\n",
		"school_code,y\n001,a\n001,b\n",
		"학교코드,z\n1.0,3\n001.0,4\n",
	)
	res, err := f.integrator().Lookup(" 001 ")
	require.NoError(t, err)
	require.Len(t, res.PerList, 3)

	assert.Equal(t, API, res.PerList[0].Name)
	assert.Equal(t, 1, res.PerList[0].Matched)
	assert.Equal(t, Infra, res.PerList[1].Name)
	assert.Equal(t, 2, res.PerList[1].Matched)
	assert.Equal(t, KESS, res.PerList[2].Name)
	assert.Equal(t, [][]string{{"001", "4"}}, res.PerList[2].Result.Rows)
}
