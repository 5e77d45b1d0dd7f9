package types

// Shared types used across csvops, integrate, analysis and server.

type TableData struct {
	HasHeader bool       `json:"hasHeader"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
}

// NamedTable is a table tagged with the label of the source it came from.
type NamedTable struct {
	Name    string    `json:"name"`
	ListKey string    `json:"list_key"`
	Table   TableData `json:"table"`
}

type ResultSummary struct {
	Processed  int   `json:"processed"`
	Matched    int   `json:"matched"`
	Missing    int   `json:"missing"`
	DurationMS int64 `json:"durationMs"`
}

// ColumnIndex returns the position of an exact header name, or -1.
func (t TableData) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the header carries name exactly.
func (t TableData) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the value at row r, column c, or "" when the row is short.
func (t TableData) Cell(r, c int) string {
	if r < 0 || r >= len(t.Rows) || c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][c]
}

// Clone deep-copies header and rows.
func (t TableData) Clone() TableData {
	out := TableData{
		HasHeader: t.HasHeader,
		Header:    append([]string(nil), t.Header...),
		Rows:      make([][]string, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, append([]string(nil), r...))
	}
	return out
}
