package csvops

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

func named(name string, header []string, rows ...[]string) types.NamedTable {
	return types.NamedTable{Name: name, Table: types.TableData{HasHeader: true, Header: header, Rows: rows}}
}

func TestLeftJoinKeepsEveryLeftRow(t *testing.T) {
	left := named("api", []string{"school_code", "x"},
		[]string{"001", "1"},
		[]string{"002", "2"},
		[]string{"", "3"},
	)
	right := named("infra", []string{"school_code", "y"},
		[]string{"001", "10"},
		[]string{"999", "99"},
	)

	got, plan, err := LeftJoin(left, right, "school_code")
	require.NoError(t, err)

	want := types.TableData{
		HasHeader: true,
		Header:    []string{"school_code", "x", "y"},
		Rows: [][]string{
			{"001", "1", "10"},
			{"002", "2", ""},
			{"", "3", ""},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LeftJoin() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, plan.Matched)
	assert.Equal(t, 2, plan.Unmatched)
	assert.Empty(t, plan.Overlap)
	assert.Equal(t, []string{"y"}, plan.Added)
}

func TestLeftJoinOverlapPrefersLeft(t *testing.T) {
	left := named("api", []string{"school_code", "score", "region"},
		[]string{"001", "", "서울"},
		[]string{"002", "7", ""},
		[]string{"003", "NaN", "부산"},
	)
	right := named("infra", []string{"region", "school_code", "score"},
		[]string{"경기", "001", "5"},
		[]string{"인천", "002", "9"},
		[]string{"", "003", ""},
	)

	got, plan, err := LeftJoin(left, right, "school_code")
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "score"}, plan.Overlap)
	assert.Empty(t, plan.Added)
	assert.Equal(t, []string{"school_code", "score", "region"}, got.Header)
	assert.Equal(t, [][]string{
		{"001", "5", "서울"},
		{"002", "7", "인천"},
		{"003", "NaN", "부산"},
	}, got.Rows)
}

func TestLeftJoinDuplicateRightKeys(t *testing.T) {
	left := named("api", []string{"school_code"}, []string{"001"}, []string{"002"})
	right := named("kess", []string{"school_code", "z"},
		[]string{"001", "first"},
		[]string{"001", "second"},
		[]string{"001", "third"},
	)

	got, plan, err := LeftJoin(left, right, "school_code")
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []string{"001", "first"}, got.Rows[0])
	assert.Equal(t, []string{"001"}, plan.DuplicateKeys)
}

func TestLeftJoinShortAndLongRows(t *testing.T) {
	left := named("api", []string{"school_code", "x"}, []string{"001"})
	right := named("infra", []string{"school_code", "y", "w"}, []string{"001", "2"})

	got, _, err := LeftJoin(left, right, "school_code")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"001", "", "2", ""}}, got.Rows)
}

func TestLeftJoinErrors(t *testing.T) {
	ok := named("api", []string{"school_code", "x"})

	_, _, err := LeftJoin(named("api", []string{"code"}), ok, "school_code")
	assert.ErrorContains(t, err, "not found in api")

	_, _, err = LeftJoin(ok, named("kess", []string{"학교코드"}), "school_code")
	assert.ErrorContains(t, err, "not found in kess")

	_, _, err = LeftJoin(named("api", []string{"school_code", "x", "x"}), ok, "school_code")
	assert.ErrorContains(t, err, "duplicate column 'x'")
}

func TestPlanJoinDoesNotTouchRows(t *testing.T) {
	left := named("api", []string{"school_code", "a", "b"}, []string{"1", "2", "3"})
	right := named("infra", []string{"school_code", "b", "c"}, []string{"1", "x", "y"})

	plan, err := PlanJoin(left, right, "school_code")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, plan.Overlap)
	assert.Equal(t, []string{"c"}, plan.Added)
	assert.Zero(t, plan.Matched)
}
