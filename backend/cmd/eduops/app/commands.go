package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/JustUsingaWebsite/eduops/backend/internal/analysis"
	"github.com/JustUsingaWebsite/eduops/backend/internal/charts"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvio"
	"github.com/JustUsingaWebsite/eduops/backend/internal/csvops"
	"github.com/JustUsingaWebsite/eduops/backend/internal/integrate"
	"github.com/JustUsingaWebsite/eduops/backend/internal/llm"
	"github.com/JustUsingaWebsite/eduops/backend/internal/output"
	"github.com/JustUsingaWebsite/eduops/backend/internal/server"
	"github.com/JustUsingaWebsite/eduops/backend/internal/types"
)

// IntegrateReport is printed after a successful integration.
type IntegrateReport struct {
	RunID    string                   `json:"run_id" yaml:"run_id"`
	Output   string                   `json:"output" yaml:"output"`
	Rows     int                      `json:"rows" yaml:"rows"`
	Columns  int                      `json:"columns" yaml:"columns"`
	Plans    []csvops.JoinPlan        `json:"plans" yaml:"plans"`
	Coverage []csvops.CrossRefSummary `json:"coverage" yaml:"coverage"`
}

func (a *App) integrateCommand() *cobra.Command {
	var api, kess, infra, out, xlsx string
	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Merge the api, infra and kess datasets on the school code",
		Long: `Integrate left-joins infra and then kess onto the api dataset by school
code. Every api row is kept; columns present on both sides keep the left
value unless it is missing. The result is written as UTF-8 CSV with a BOM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.integrateOptions()
			for label, path := range map[string]string{integrate.API: api, integrate.KESS: kess, integrate.Infra: infra} {
				if path != "" {
					opts.Sources[label] = path
				}
			}
			if out != "" {
				opts.Output = out
			}
			if xlsx != "" {
				opts.ExcelOutput = xlsx
			}

			in := integrate.New(opts, a.logger)
			tbl, err := in.Integrate()
			if err != nil {
				return err
			}
			a.logger.Info().Str("run_id", in.RunID()).Str("output", opts.Output).Int("rows", len(tbl.Rows)).Msg("integration complete")

			report := IntegrateReport{
				RunID:    in.RunID(),
				Output:   opts.Output,
				Rows:     len(tbl.Rows),
				Columns:  len(tbl.Header),
				Plans:    in.Plans(),
				Coverage: in.Coverage(),
			}
			if a.format == output.FormatTable {
				return a.print(report.Plans)
			}
			return a.print(report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&api, "api", "", "api dataset (default data.api)")
	f.StringVar(&kess, "kess", "", "KESS dataset (default data.kess)")
	f.StringVar(&infra, "infra", "", "digital infrastructure dataset (default data.infra)")
	f.StringVar(&out, "out", "", "merged CSV (default output.csv)")
	f.StringVar(&xlsx, "xlsx", "", "also write the merged table as an Excel workbook")
	return cmd
}

func (a *App) lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <school-code>",
		Short: "Show the rows of every source dataset for one school",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := integrate.New(a.integrateOptions(), a.logger).Lookup(args[0])
			if err != nil {
				return err
			}
			if res.Summary.Matched == 0 {
				return fmt.Errorf("school %s not found", args[0])
			}
			if a.format != output.FormatTable {
				return a.print(res)
			}
			for _, pl := range res.PerList {
				fmt.Fprintf(a.stdout, "%s: %d of %d rows\n", pl.Name, pl.Matched, pl.Processed)
				if pl.Error != nil {
					fmt.Fprintf(a.stdout, "  %s\n", *pl.Error)
					continue
				}
				if pl.Matched > 0 {
					if err := a.print(pl.Result); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func (a *App) filterCommand() *cobra.Command {
	var out string
	var categories []string
	cmd := &cobra.Command{
		Use:   "filter [file]",
		Short: "Drop school-type and total rows from a regional table",
		Long: `Filter removes the rows whose 구분 is a school type or a total
(초등학교, 중학교, 일반고, 특성화고, 자율고, 특수목적고, 특수학교, 전체, 계),
leaving only the regional rows. The file defaults to data.total.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.config.Data.Total
			if len(args) == 1 {
				path = args[0]
			}
			tbl, err := csvio.ReadFile(path)
			if err != nil {
				return err
			}
			kept, summary, err := analysis.DropCategories(tbl, categories)
			if err != nil {
				return err
			}
			a.logger.Info().Str("input", path).Int("processed", summary.Processed).Int("kept", summary.Matched).Msg("categories dropped")
			if out != "" {
				return csvio.WriteFile(out, kept)
			}
			return a.print(kept)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the filtered table to this CSV instead of printing it")
	cmd.Flags().StringSliceVar(&categories, "drop", nil, "categories to drop (default school types and totals)")
	return cmd
}

func (a *App) replaceCommand() *cobra.Command {
	var rulesFile, out string
	var opts csvops.ReplaceOptions
	cmd := &cobra.Command{
		Use:   "replace <file>",
		Short: "Rewrite cell values with rules from a YAML file",
		Long: `Replace applies the rules in order to the chosen columns. A rules file
is a YAML list:

  - targets: ["서울", "서울시"]
    replacement: 서울특별시
    whole_cell: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(rulesFile)
			if err != nil {
				return fmt.Errorf("read rules: %w", err)
			}
			var rules []csvops.ReplaceRule
			if err := yaml.Unmarshal(raw, &rules); err != nil {
				return fmt.Errorf("parse rules %s: %w", rulesFile, err)
			}
			tbl, err := csvio.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, perRule, err := csvops.Replace(tbl, rules, opts)
			if err != nil {
				return err
			}
			for _, r := range perRule {
				a.logger.Info().Int("rule", r.Index).Str("replacement", r.Replacement).Int("replacements", r.Replacements).Msg("rule applied")
			}
			if out != "" {
				return csvio.WriteFile(out, result)
			}
			return a.print(result)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rulesFile, "rules", "", "YAML rules file")
	f.StringVar(&out, "out", "", "write the result to this CSV instead of printing it")
	f.StringSliceVar(&opts.Columns, "columns", nil, "columns to rewrite (default all)")
	f.BoolVar(&opts.TrimSpaces, "trim", true, "trim cells before matching")
	f.BoolVar(&opts.CaseInsensitive, "ignore-case", false, "match case-insensitively unless a rule says otherwise")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func (a *App) previewCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Print the first rows of a CSV file",
		Long:  "Preview prints the first rows of a CSV file; the file defaults to the merged output.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.config.Output.CSV
			if len(args) == 1 {
				path = args[0]
			}
			tbl, err := csvio.ReadFile(path)
			if err != nil {
				return err
			}
			if limit >= 0 && limit < len(tbl.Rows) {
				tbl.Rows = tbl.Rows[:limit]
			}
			return a.print(tbl)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of rows; negative prints all")
	return cmd
}

func (a *App) exportCommand() *cobra.Command {
	var to, out string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Convert a CSV file to JSON or an Excel workbook",
		Long:  "Export writes the table next to the input, with the extension of the target format, unless --out is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := csvio.ReadFile(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "." + to
			}
			switch to {
			case "json":
				err = csvio.WriteJSONFile(out, tbl)
			case "xlsx":
				err = csvio.WriteExcel(out, "", tbl)
			default:
				return fmt.Errorf("unsupported export format %q: must be json or xlsx", to)
			}
			if err != nil {
				return err
			}
			a.logger.Info().Str("input", args[0]).Str("output", out).Int("rows", len(tbl.Rows)).Msg("exported")
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "json", "target format: json, xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output path")
	return cmd
}

func (a *App) statsCommand() *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the yearly computer trend and the regional distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if year == "" {
				year = a.config.Charts.Year
			}
			stats, err := analysis.Load(a.config.Data.Tech)
			if err != nil {
				return err
			}
			points, err := stats.YearlyTrend()
			if err != nil {
				return err
			}
			counts, err := stats.RegionalDistribution(year)
			if err != nil {
				return err
			}
			if a.format != output.FormatTable {
				return a.print(map[string]any{"trend": points, "regions": counts, "year": year})
			}
			if err := a.print(analysis.TrendTable(points)); err != nil {
				return err
			}
			return a.print(analysis.DistributionTable(counts))
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "year of the regional distribution (default charts.year)")
	return cmd
}

// ChartsReport lists the files written by the charts command.
type ChartsReport struct {
	Charts  []string `json:"charts" yaml:"charts"`
	Summary string   `json:"summary" yaml:"summary"`
}

func (a *App) chartsCommand() *cobra.Command {
	var year, dir string
	cmd := &cobra.Command{
		Use:   "charts",
		Short: "Render the digital resources charts and the regional laptop summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if year == "" {
				year = a.config.Charts.Year
			}
			if dir == "" {
				dir = a.config.Charts.Dir
			}

			tech, err := analysis.Load(a.config.Data.Tech)
			if err != nil {
				return err
			}
			written, err := charts.WriteAll(tech, year, dir)
			if err != nil {
				return err
			}
			for _, p := range written {
				a.logger.Info().Str("path", p).Msg("chart written")
			}

			region, err := analysis.Load(a.config.Data.Region)
			if err != nil {
				return err
			}
			summary, err := region.RegionSummary(nil)
			if err != nil {
				return err
			}
			if err := csvio.WriteFile(a.config.Output.Summary, summary); err != nil {
				return err
			}
			a.logger.Info().Str("path", a.config.Output.Summary).Int("regions", len(summary.Rows)).Msg("summary written")

			return a.print(ChartsReport{Charts: written, Summary: a.config.Output.Summary})
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "year of the regional chart (default charts.year)")
	cmd.Flags().StringVar(&dir, "dir", "", "chart directory (default charts.dir)")
	return cmd
}

func (a *App) summarizeCommand() *cobra.Command {
	var input string
	var limit int
	cmd := &cobra.Command{
		Use:   "summarize <request>",
		Short: "Ask the model for a two-section summary of a CSV file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.config.Output.CSV
			}
			tbl, err := csvio.ReadFile(input)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(tbl.Rows) {
				tbl.Rows = tbl.Rows[:limit]
			}
			data, err := csvText(tbl)
			if err != nil {
				return err
			}

			gen, err := a.generator(cmd.Context())
			if err != nil {
				return err
			}
			summary, raw, err := llm.Summarize(cmd.Context(), gen, data, strings.Join(args, " "))
			if err != nil {
				if errors.Is(err, llm.ErrMalformedSummary) {
					a.logger.Debug().Str("raw", raw).Msg("unparsed model response")
				}
				return err
			}
			if a.format != output.FormatTable {
				return a.print(summary)
			}
			fmt.Fprintln(a.stdout, llm.KeyPointsHeading)
			for _, p := range summary.KeyPoints {
				fmt.Fprintf(a.stdout, "- %s\n", p)
			}
			fmt.Fprintf(a.stdout, "\n%s\n%s\n", llm.ImplicationsHeading, summary.Implications)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV to summarize (default output.csv)")
	cmd.Flags().IntVar(&limit, "limit", 50, "rows sent to the model")
	return cmd
}

func (a *App) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.config.Server.Addr
			}
			gen, err := a.generator(cmd.Context())
			if err != nil {
				if !errors.Is(err, llm.ErrAPIKeyRequired) {
					return err
				}
				a.logger.Warn().Msg("no LLM API key configured; chat and summary are disabled")
			}
			h := server.New(server.Options{
				Integrated: a.config.Output.CSV,
				Sources:    a.integrateOptions(),
				Tech:       a.config.Data.Tech,
				Year:       a.config.Charts.Year,
				StaticDir:  a.config.Static,
				Origins:    a.config.Server.Origins,
			}, gen, a.logger)
			return h.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func csvText(tbl types.TableData) (string, error) {
	var buf bytes.Buffer
	if err := output.NewFormatter(output.FormatCSV).Format(&buf, tbl); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
