// Package csvio reads and writes the tables exchanged with the outside world:
// BOM-tolerant CSV input, UTF-8-with-BOM CSV output, JSON and XLSX exports.
package csvio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// ErrEmpty is returned for input without a header line.
var ErrEmpty = errors.New("csv is empty")

// ReadFile opens path and parses it with Read.
func ReadFile(path string) (types.TableData, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.TableData{}, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	tbl, err := Read(f)
	if err != nil {
		return types.TableData{}, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

// Read parses UTF-8 CSV with an optional byte order mark. The first record
// is the header; repeated header names get ".1", ".2" suffixes. Short rows
// are padded to the header width, longer rows are an error.
func Read(r io.Reader) (types.TableData, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return types.TableData{}, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return types.TableData{}, ErrEmpty
	}

	header := dedupeHeader(records[0])
	rows := make([][]string, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) > len(header) {
			return types.TableData{}, fmt.Errorf("line %d: %d fields, header has %d", i+2, len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		rows = append(rows, rec)
	}
	return types.TableData{HasHeader: true, Header: header, Rows: rows}, nil
}

func dedupeHeader(in []string) []string {
	out := make([]string, len(in))
	used := make(map[string]struct{}, len(in))
	counts := make(map[string]int, len(in))
	for i, h := range in {
		name := h
		for {
			if _, taken := used[name]; !taken {
				break
			}
			counts[h]++
			name = h + "." + strconv.Itoa(counts[h])
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}

// Write encodes tbl as CSV, UTF-8 with a leading BOM, header first.
func Write(w io.Writer, tbl types.TableData) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	if tbl.HasHeader || len(tbl.Header) > 0 {
		if err := cw.Write(tbl.Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.WriteAll(tbl.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return tw.Close()
}

// WriteFile writes tbl to path atomically: the data goes to a temporary file
// in the same directory which replaces path only once fully written.
func WriteFile(path string, tbl types.TableData) error {
	return writeAtomic(path, func(f *os.File) error { return Write(f, tbl) })
}

// WriteJSON writes tbl as indented JSON.
func WriteJSON(w io.Writer, tbl types.TableData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tbl)
}

// WriteJSONFile writes tbl as indented JSON to path, atomically.
func WriteJSONFile(path string, tbl types.TableData) error {
	return writeAtomic(path, func(f *os.File) error { return WriteJSON(f, tbl) })
}

func writeAtomic(path string, fill func(*os.File) error) error {
	st, err := stage(path, fill)
	if err != nil {
		return err
	}
	return st.Commit()
}

// Staged is a fully written temp file waiting to replace its target.
type Staged struct {
	tmp  string
	path string
}

// StageFile writes tbl as CSV next to path without replacing path.
func StageFile(path string, tbl types.TableData) (*Staged, error) {
	return stage(path, func(f *os.File) error { return Write(f, tbl) })
}

// Commit renames the temp file over the target.
func (s *Staged) Commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		_ = os.Remove(s.tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Discard removes the temp file, leaving the target untouched.
func (s *Staged) Discard() {
	_ = os.Remove(s.tmp)
}

func stage(path string, fill func(*os.File) error) (_ *Staged, err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return nil, err
	}
	if err = tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	return &Staged{tmp: tmp.Name(), path: path}, nil
}
