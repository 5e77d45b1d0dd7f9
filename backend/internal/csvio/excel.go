package csvio

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// WriteExcel writes tbl to a single-sheet workbook at path, atomically.
// Cells stay text so identifiers keep their leading zeros.
func WriteExcel(path, sheet string, tbl types.TableData) error {
	st, err := StageExcel(path, sheet, tbl)
	if err != nil {
		return err
	}
	return st.Commit()
}

// StageExcel builds the workbook for WriteExcel next to path without
// replacing path.
func StageExcel(path, sheet string, tbl types.TableData) (*Staged, error) {
	if sheet == "" {
		sheet = "data"
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	line := 1
	if len(tbl.Header) > 0 {
		if err := setRow(f, sheet, line, tbl.Header); err != nil {
			return nil, err
		}
		line++
	}
	for _, row := range tbl.Rows {
		if err := setRow(f, sheet, line, row); err != nil {
			return nil, err
		}
		line++
	}

	return stage(path, func(out *os.File) error {
		if _, err := f.WriteTo(out); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		return nil
	})
}

func setRow(f *excelize.File, sheet string, line int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("row %d: %w", line, err)
	}
	return nil
}
