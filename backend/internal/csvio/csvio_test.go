package csvio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

const bom = "\xef\xbb\xbf"

func TestReadStripsBOM(t *testing.T) {
	tbl, err := Read(strings.NewReader(bom + "학교코드,z\n001,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"학교코드", "z"}, tbl.Header)
	assert.Equal(t, [][]string{{"001", "3"}}, tbl.Rows)
	assert.True(t, tbl.HasHeader)
}

func TestReadWithoutBOM(t *testing.T) {
	tbl, err := Read(strings.NewReader("school_code,x\n001,1\n"))
	require.NoError(t, err)
	assert.Equal(t, "school_code", tbl.Header[0])
	assert.Equal(t, "001", tbl.Rows[0][0])
}

func TestReadDedupesHeaderAndPadsRows(t *testing.T) {
	tbl, err := Read(strings.NewReader("a,a,b,a\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "b", "a.2"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "2", "", ""}}, tbl.Rows)
}

func TestReadRejectsLongRows(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n1,2,3\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteRoundTrip(t *testing.T) {
	in := types.TableData{
		HasHeader: true,
		Header:    []string{"school_code", "지역", "note"},
		Rows:      [][]string{{"001", "서울특별시", "a, b"}, {"002", "", "\"q\""}},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(bom)), "output must start with a BOM")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(bom)))

	out, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "integrated.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	tbl := types.TableData{HasHeader: true, Header: []string{"k"}, Rows: [][]string{{"1"}}}
	require.NoError(t, WriteFile(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bom+"k\n1\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStageFileCommitAndDiscard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "integrated.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	tbl := types.TableData{HasHeader: true, Header: []string{"k"}, Rows: [][]string{{"1"}}}

	st, err := StageFile(path, tbl)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	st.Discard()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	st, err = StageFile(path, tbl)
	require.NoError(t, err)
	require.NoError(t, st.Commit())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bom+"k\n1\n", string(data))
}

func TestWriteFileMissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "no", "such", "out.csv"), types.TableData{})
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, types.TableData{HasHeader: true, Header: []string{"k"}, Rows: [][]string{{"서울"}}}))
	assert.Contains(t, buf.String(), `"header": [`)
	assert.Contains(t, buf.String(), "서울")

	path := filepath.Join(t.TempDir(), "table.json")
	require.NoError(t, WriteJSONFile(path, types.TableData{HasHeader: true, Header: []string{"k"}}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"hasHeader": true`)
}

func TestWriteExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "integrated.xlsx")
	tbl := types.TableData{HasHeader: true, Header: []string{"school_code", "지역"}, Rows: [][]string{{"001", "부산광역시"}}}
	require.NoError(t, WriteExcel(path, "integrated", tbl))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("integrated")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"school_code", "지역"}, {"001", "부산광역시"}}, rows)
}
