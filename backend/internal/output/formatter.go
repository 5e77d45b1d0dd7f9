// Package output renders command results as tables, JSON or YAML.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// Format types for output.
type Format string

const (
	// FormatTable represents table output format.
	FormatTable Format = "table"
	// FormatJSON represents JSON output format.
	FormatJSON Format = "json"
	// FormatYAML represents YAML output format.
	FormatYAML Format = "yaml"
	// FormatCSV represents BOM-less CSV on stdout.
	FormatCSV Format = "csv"
)

// Formatter interface for all output types.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter creates appropriate formatter based on format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: "  "}
	case FormatYAML:
		return &YAMLFormatter{}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TableFormatter{}
	}
}

// DetectFormat returns explicit when set, else table on a terminal and JSON
// for pipes.
func DetectFormat(explicit string) Format {
	if explicit != "" {
		return Format(strings.ToLower(explicit))
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable
	}
	return FormatJSON
}

// ParseFormat converts string to Format with validation.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(s))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV, "":
		return format, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be one of: table, json, yaml, csv", s)
	}
}

// JSONFormatter outputs JSON format.
type JSONFormatter struct {
	Indent string
}

// Format implements the Formatter interface for JSON output.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent != "" {
		encoder.SetIndent("", f.Indent)
	}
	return encoder.Encode(data)
}

// YAMLFormatter outputs YAML format.
type YAMLFormatter struct{}

// Format outputs data in YAML format.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	yamlData, err := yaml.MarshalWithOptions(data,
		yaml.Indent(2),
		yaml.IndentSequence(false),
	)
	if err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}

// CSVFormatter writes tables as plain CSV without a byte order mark.
type CSVFormatter struct{}

// Format implements the Formatter interface for CSV output.
func (f *CSVFormatter) Format(w io.Writer, data any) error {
	var tbl types.TableData
	switch v := data.(type) {
	case types.TableData:
		tbl = v
	case *types.TableData:
		tbl = *v
	default:
		t := structsToTable(data)
		if t == nil {
			return fmt.Errorf("csv output needs tabular data, got %T", data)
		}
		tbl = *t
	}
	cw := csv.NewWriter(w)
	if len(tbl.Header) > 0 {
		if err := cw.Write(tbl.Header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(tbl.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// TableFormatter outputs table format. Tables print as they are; struct
// slices become one row per element, falling back to JSON for anything else.
type TableFormatter struct{}

// Format outputs data in table format.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case types.TableData:
		return renderTable(w, v.Header, v.Rows)
	case *types.TableData:
		return renderTable(w, v.Header, v.Rows)
	default:
		if tbl := structsToTable(data); tbl != nil {
			return renderTable(w, tbl.Header, tbl.Rows)
		}
		return (&JSONFormatter{Indent: "  "}).Format(w, data)
	}
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewTable(w)
	if len(header) > 0 {
		headers := make([]any, len(header))
		for i, h := range header {
			headers[i] = h
		}
		table.Header(headers...)
	}
	for _, row := range rows {
		rowData := make([]any, len(row))
		for i, cell := range row {
			rowData[i] = cell
		}
		if err := table.Append(rowData...); err != nil {
			return err
		}
	}
	return table.Render()
}

// structsToTable converts a slice of structs (or a single struct) to a
// table, titling json tags for the header.
func structsToTable(data any) *types.TableData {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	switch {
	case v.Kind() == reflect.Slice && v.Len() > 0 && v.Index(0).Kind() == reflect.Struct:
	case v.Kind() == reflect.Struct:
		s := reflect.MakeSlice(reflect.SliceOf(v.Type()), 0, 1)
		v = reflect.Append(s, v)
	default:
		return nil
	}

	elemType := v.Index(0).Type()
	caser := cases.Title(language.English)
	tbl := &types.TableData{HasHeader: true}
	var fields []int
	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
			if idx := strings.Index(tag, ","); idx > 0 {
				tag = tag[:idx]
			}
			name = caser.String(strings.ReplaceAll(tag, "_", " "))
		}
		tbl.Header = append(tbl.Header, name)
		fields = append(fields, i)
	}

	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		row := make([]string, 0, len(fields))
		for _, j := range fields {
			row = append(row, cellText(elem.Field(j)))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func cellText(v reflect.Value) string {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = v.Index(i).String()
		}
		return strings.Join(parts, ", ")
	}
	if v.Kind() == reflect.Float64 || v.Kind() == reflect.Float32 {
		return fmt.Sprintf("%.2f", v.Float())
	}
	return fmt.Sprintf("%v", v.Interface())
}
